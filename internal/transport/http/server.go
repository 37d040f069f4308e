package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jeankeim/voice-brainstorm/internal/ai"
	appsvc "github.com/jeankeim/voice-brainstorm/internal/app"
	"github.com/jeankeim/voice-brainstorm/internal/bootstrap"
	"github.com/jeankeim/voice-brainstorm/internal/cache"
	"github.com/jeankeim/voice-brainstorm/internal/repository"
	"github.com/jeankeim/voice-brainstorm/internal/retrieval"
	"github.com/jeankeim/voice-brainstorm/internal/transport/http/handler"
	"github.com/jeankeim/voice-brainstorm/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	cfg := app.Config

	userRepo := repository.NewUserRepository(app.DB)
	sessionRepo := repository.NewSessionRepository(app.DB)
	messageRepo := repository.NewMessageRepository(app.DB)
	kbRepo := repository.NewKnowledgeBaseRepository(app.DB)
	docRepo := repository.NewDocumentRepository(app.DB)

	embedCfg := ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	}
	textLLM := ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.TextModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
	visionLLM := textLLM
	visionLLM.Model = cfg.LLM.VisionModel

	retriever := retrieval.NewRetriever(
		app.AIClient,
		embedCfg,
		app.VectorStore,
		cfg.Retrieval.TopK,
		cfg.Retrieval.VectorWeight,
		app.Logger,
	)

	var publisher appsvc.AsyncMessagePublisher
	if app.Publisher != nil {
		publisher = app.Publisher
	}
	var historyCache appsvc.HistoryCache
	if app.Redis != nil {
		historyCache = cache.NewHistoryCache(
			app.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}

	visitorService := appsvc.NewVisitorService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenExpireDay)*24*time.Hour,
	)
	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		publisher,
		historyCache,
		retriever,
		app.Quota,
		app.AIClient,
		textLLM,
		visionLLM,
		cfg.Retrieval.HistoryTopK,
		cfg.LLM.MaxContextMessage,
		app.Logger,
	)
	knowledgeService := appsvc.NewKnowledgeService(
		kbRepo,
		docRepo,
		app.VectorStore,
		app.AIClient,
		embedCfg,
		cfg.Retrieval.ChunkSize,
		cfg.Retrieval.ChunkOverlap,
		app.Logger,
	)

	healthHandler := handler.NewHealthHandler(app)
	visitorHandler := handler.NewVisitorHandler(visitorService)
	chatHandler := handler.NewChatHandler(chatService)
	knowledgeHandler := handler.NewKnowledgeHandler(knowledgeService)
	quotaHandler := handler.NewQuotaHandler(chatService, cfg.Quota.DailyLimit)
	uploadHandler := handler.NewUploadHandler(app.Objects)

	router.GET("/healthz", healthHandler.Check)
	router.Static(cfg.Objects.PublicURL, cfg.Objects.LocalDir)

	api := router.Group("/api")
	api.GET("/check", healthHandler.Check)
	api.POST("/visitor", visitorHandler.Register)

	authed := api.Group("")
	authed.Use(middleware.AuthVisitor(visitorService))

	authed.GET("/quota", quotaHandler.Remaining)
	authed.POST("/chat/stream", chatHandler.Stream)
	authed.POST("/upload/image", uploadHandler.UploadImage)

	authed.POST("/sessions", chatHandler.CreateSession)
	authed.GET("/sessions", chatHandler.ListSessions)
	authed.PUT("/sessions/:id", chatHandler.RenameSession)
	authed.DELETE("/sessions/:id", chatHandler.DeleteSession)
	authed.GET("/history", chatHandler.GetHistory)

	authed.POST("/knowledge-bases", knowledgeHandler.CreateKnowledgeBase)
	authed.GET("/knowledge-bases", knowledgeHandler.ListKnowledgeBases)
	authed.PUT("/knowledge-bases/:id", knowledgeHandler.UpdateKnowledgeBase)
	authed.DELETE("/knowledge-bases/:id", knowledgeHandler.DeleteKnowledgeBase)
	authed.POST("/knowledge-bases/:id/documents", knowledgeHandler.UploadDocument)
	authed.GET("/knowledge-bases/:id/documents", knowledgeHandler.ListDocuments)
	authed.DELETE("/knowledge-bases/:id/documents/:doc_id", knowledgeHandler.DeleteDocument)

	return router
}
