package wire

import (
	"Beacon/internal/api"
	"Beacon/internal/api/config"
	"Beacon/internal/api/handler"
	"Beacon/internal/job"
	"Beacon/internal/pkg/cron"
	basemongo "Beacon/internal/pkg/mongo"
	"Beacon/internal/repository"
	"Beacon/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router      *gin.Engine
	DB          *gorm.DB
	MongoClient *mongo.Client
	ChatService service.ChatService
	CronManager *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoClient *mongo.Client, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	userRepo := repository.NewUserRepo(db)
	merchantRepo := repository.NewMerchantRepo(db)
	chatRepo := basemongo.NewChatRepo(mongoClient, mongoDB)

	store := service.NewRedisStore()
	chatService := service.NewChatService(chatRepo, userRepo, merchantRepo, store, cfg.Chat)
	presenceService := service.NewPresenceService(userRepo, store, cfg.Chat)

	handlers := &api.HandlersGroup{
		ChatHandler: handler.NewChatHandler(chatService),
		WSHandler:   handler.NewWsHandler(chatService, presenceService),
	}

	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(job.NewUnreadAuditJob(chatService))

	return &ApplicationContainer{
		Router:      router,
		DB:          db,
		MongoClient: mongoClient,
		ChatService: chatService,
		CronManager: cronMgr,
	}, nil
}
