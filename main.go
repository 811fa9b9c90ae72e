package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"forumai/api"
	"forumai/config"
	"forumai/database"
	"forumai/middleware"
	"forumai/models"
	"forumai/repository"
	"forumai/services"

	"gorm.io/gorm"
)

func main() {
	// .env first, then the YAML config which reads from the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: [Main] No .env file found, relying on the environment.")
	}
	config.LoadConfig()

	db, err := database.Init()
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to initialize database: %v", err)
	}
	runMigrations(db)

	// Repositories
	taskRepo := repository.NewTaskRepository(db)
	forumRepo := repository.NewForumRepository(db, config.AppConfig.Forum.BaseURL)
	convRepo := repository.NewConversationRepository(db, config.AppConfig.Chat.MaxConversationsPerUser)
	adminLogRepo := repository.NewAdminLogRepository(db)
	log.Println("INFO: [Main] Repositories initialized.")

	// Services
	aiClient := services.NewAIClient(
		config.AppConfig.AIAPI.BaseURL,
		config.AppConfig.AIAPI.APIKey,
		time.Duration(config.AppConfig.AIAPI.TimeoutSeconds)*time.Second,
	)
	schedulerService := services.NewSchedulerService(taskRepo, time.Hour)
	executorService := services.NewExecutorService(taskRepo, forumRepo, adminLogRepo, aiClient)
	chatService := services.NewChatService(convRepo, aiClient, forumRepo)
	log.Println("INFO: [Main] Services initialized.")

	apiHandler := api.NewAPIHandler(taskRepo, adminLogRepo, schedulerService, executorService, chatService)
	log.Println("INFO: [Main] API Handler initialized.")

	// Scheduler loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := services.NewRunner(
		taskRepo,
		schedulerService,
		executorService,
		time.Duration(config.AppConfig.Scheduler.PollIntervalSeconds)*time.Second,
		time.Duration(config.AppConfig.Scheduler.ReconcileIntervalSecs)*time.Second,
	)
	go runner.Start(ctx)

	r := gin.Default()
	r.SetTrustedProxies(nil)

	r.Use(middleware.Logger())
	r.Use(middleware.Cors())
	log.Println("INFO: [Main] Middlewares registered.")

	registerRoutes(r, apiHandler)
	log.Println("INFO: [Main] Routes registered.")

	serverPort := ":" + config.AppConfig.Server.Port
	if config.AppConfig.Server.Port == "" {
		log.Println("WARN: [Main] Server port not configured, using default :8080.")
		serverPort = ":8080"
	}
	log.Printf("INFO: [Main] Starting server on port %s", serverPort)
	if err := r.Run(serverPort); err != nil {
		log.Fatalf("FATAL: [Main] Server failed to start: %v", err)
	}
}

func runMigrations(db *gorm.DB) {
	log.Println("INFO: [Main] Running database migrations...")
	err := db.AutoMigrate(
		&models.Task{},
		&models.TaskLog{},
		&models.Topic{},
		&models.Post{},
		&models.Conversation{},
		&models.Message{},
		&models.AdminLog{},
	)
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to auto-migrate database: %v", err)
	}
	log.Println("INFO: [Main] Database migration completed.")
}

func registerRoutes(r *gin.Engine, handler *api.APIHandler) {
	r.GET("/health", handler.HealthHandler)
	r.GET("/nonce", handler.NonceHandler)

	// Single AJAX dispatcher, keyed by the action parameter.
	r.POST("/ajax", middleware.AjaxAuth(api.AdminActions()), handler.DispatchHandler)
}
