package main

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nemark/chat-server/internal/api/handlers"
	"github.com/nemark/chat-server/internal/api/middleware"
	"github.com/nemark/chat-server/internal/chat"
	"github.com/nemark/chat-server/internal/config"
	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/database"
	"github.com/nemark/chat-server/internal/fanout"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/internal/websocket"
)

func main() {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Infof("Opening database: %s", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	jwtManager, err := crypto.NewJWTManager(cfg.EmbedSecret, cfg.PlatformSecret, cfg.EmbedTokenTTL())
	if err != nil {
		logger.Errorf("Failed to create JWT manager: %v", err)
		os.Exit(1)
	}

	st := store.New(db.DB)

	projector := chat.NewProjector(st)
	defer projector.Close()
	chatService := chat.NewService(st, projector)

	router := fanout.NewRouter()
	typing := fanout.NewTypingTracker()
	defer typing.Close()

	logger.Infof("Initializing Socket.IO server...")
	socketIOServer := websocket.NewSocketIOServer(jwtManager, chatService, st, router, typing)
	defer socketIOServer.Close()

	simpleServer := websocket.NewSimpleServer(jwtManager, chatService, router, typing)

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	engine.Use(cors.New(corsConfig))

	engine.Use(middleware.LoggingMiddleware())

	engine.GET("/", func(c *gin.Context) {
		c.String(200, "OK")
	})

	authHandler := handlers.NewAuthHandler(st, jwtManager)
	embedHandler := handlers.NewEmbedHandler(st, jwtManager)
	conversationsHandler := handlers.NewConversationsHandler(st, chatService, router)

	// Public routes
	v1 := engine.Group("/v1")
	{
		v1.POST("/auth/login", authHandler.PostLogin)
		v1.POST("/embed/session", embedHandler.PostSession)
	}

	// Realtime endpoints (auth happens at handshake)
	engine.Any("/v1/realtime/*any", socketIOServer.HandleSocketIO())
	engine.GET("/v1/ws", simpleServer.HandleWebSocket)

	// Staff dashboard routes
	protected := v1.Group("")
	protected.Use(middleware.StaffAuth(jwtManager))
	{
		protected.GET("/conversations", conversationsHandler.ListConversations)
		protected.GET("/conversations/:id/messages", conversationsHandler.GetMessages)
		protected.POST("/conversations/:id/messages", conversationsHandler.PostMessage)
		protected.POST("/conversations/:id/seen", conversationsHandler.PostSeen)
	}

	logger.Infof("Starting server on %s", cfg.Addr)
	if err := engine.Run(cfg.Addr); err != nil {
		logger.Errorf("Server error: %v", err)
		os.Exit(1)
	}
}
