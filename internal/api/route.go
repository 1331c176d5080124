package api

import (
	"Beacon/internal/api/middleware"
	"Beacon/internal/pkg/consts"
	"Beacon/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		chatGroup := apiGroup.Group("/chat")
		{
			// 长连接在握手前自行校验 token，不走鉴权中间件
			chatGroup.GET("/ws", group.WSHandler.Connect)

			authGroup := chatGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.POST("/conversation", group.ChatHandler.GetOrCreateConversation)
				authGroup.GET("/conversations/:id/messages", group.ChatHandler.GetMessages)
				authGroup.POST("/conversations/:id/messages", group.ChatHandler.SendMessage)
				authGroup.POST("/conversations/:id/messages/:messageId/read", group.ChatHandler.MarkMessageRead)
			}

			// 需要登录 & 拥有 admin 角色
			adminGroup := authGroup.Group("/admin")
			adminGroup.Use(middleware.CheckRoles(consts.RoleAdmin))
			{
				adminGroup.GET("/conversations", group.ChatHandler.ListConversations)
				adminGroup.PUT("/conversations/:id/status", group.ChatHandler.UpdateStatus)
				adminGroup.DELETE("/messages/:messageId", group.ChatHandler.DeleteMessage)
				adminGroup.POST("/broadcast", group.ChatHandler.Broadcast)
			}
		}
	}

	return r
}
