package handler

import (
	"Beacon/internal/api/dto"
	"Beacon/internal/pkg/response"
	"Beacon/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatSvc service.ChatService
}

func NewChatHandler(chatSvc service.ChatService) *ChatHandler {
	return &ChatHandler{chatSvc: chatSvc}
}

// GetOrCreateConversation 用户进线：返回其在当前租户下的唯一会话，没有则创建
func (s *ChatHandler) GetOrCreateConversation(c *gin.Context) {
	userID := c.GetUint64("user_id")
	appNameID := c.GetInt64("app_name_id")

	res, err := s.chatSvc.GetOrCreateConversation(c.Request.Context(), userID, appNameID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendMessage 发送消息接口
func (s *ChatHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	senderID := c.GetUint64("user_id")
	conversationID := c.Param("id")

	res, err := s.chatSvc.SendMessage(c.Request.Context(), conversationID, senderID, req.Content, req.MsgType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetMessages 获取历史消息，升序分页；拉取即把对方消息置为已读
func (s *ChatHandler) GetMessages(c *gin.Context) {
	var page dto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, err)
		return
	}

	userID := c.GetUint64("user_id")
	conversationID := c.Param("id")

	res, err := s.chatSvc.GetMessages(c.Request.Context(), conversationID, userID, page.Page, page.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkMessageRead 单条已读回执
func (s *ChatHandler) MarkMessageRead(c *gin.Context) {
	userID := c.GetUint64("user_id")

	err := s.chatSvc.MarkMessageRead(c.Request.Context(), c.Param("id"), c.Param("messageId"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListConversations 管理员会话列表，按最近活跃倒序
func (s *ChatHandler) ListConversations(c *gin.Context) {
	var page dto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, err)
		return
	}

	adminID := c.GetUint64("user_id")

	res, err := s.chatSvc.ListAdminConversations(c.Request.Context(), adminID, page.Page, page.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// UpdateStatus 会话状态迁移
func (s *ChatHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	userID := c.GetUint64("user_id")

	err := s.chatSvc.UpdateStatus(c.Request.Context(), c.Param("id"), userID, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// DeleteMessage 管理员删除消息
func (s *ChatHandler) DeleteMessage(c *gin.Context) {
	userID := c.GetUint64("user_id")

	err := s.chatSvc.DeleteMessage(c.Request.Context(), c.Param("messageId"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Broadcast 管理员群发
func (s *ChatHandler) Broadcast(c *gin.Context) {
	var req dto.BroadcastReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	adminID := c.GetUint64("user_id")

	res, err := s.chatSvc.BroadcastFromAdmin(c.Request.Context(), adminID, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
