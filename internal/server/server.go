package server

import (
	"context"
	"log"
	"net/http"

	"campusgrid/configs"
	"campusgrid/internal/dbs"
	"campusgrid/internal/handlers"
	"campusgrid/internal/logger"
	"campusgrid/internal/middlewares"
	"campusgrid/internal/repositories"
	"campusgrid/internal/services"
	"campusgrid/internal/workerpool"

	"github.com/gin-gonic/gin"
)

func StartGinServer() {
	logger.InitLogger()
	defer logger.SyncLogger()

	config := configs.LoadConfig()

	db, err := dbs.Init(config)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	rdb, err := dbs.InitRedis(ctx, config)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer rdb.Close()

	cache := services.NewRedisCache(rdb)

	attemptRepo := repositories.NewAttemptRepository(db)
	questionRepo := repositories.NewQuestionRepository(db, cache)
	progressRepo := repositories.NewProgressRepository(db)
	userRepo := repositories.NewUserRepository(db, cache)

	validator := services.NewCodeValidator(config.MaxCodeLength)
	sandbox, err := services.NewSandbox(config.ExecWorkDir, config.MaxConcurrentRuns)
	if err != nil {
		log.Fatalf("Failed to initialize sandbox: %v", err)
	}

	tokenService := services.NewTokenService(config.JWTSecret)
	startLock := services.NewStartLock(rdb, config.StartLockTTL)
	progressService := services.NewProgressService(progressRepo, attemptRepo)

	jobQueue := workerpool.NewJobQueue(rdb)
	attemptService := services.NewAttemptService(attemptRepo, questionRepo, validator,
		sandbox, progressService, startLock, jobQueue)

	progressWorker := workerpool.NewProgressWorker("progress-1", rdb, attemptRepo, progressService)
	pool := workerpool.NewPool(config.NumberOfWorkers, rdb, validator, sandbox, cache, progressWorker)
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}
	defer pool.Stop()

	router := gin.New()
	router.Use(middlewares.ErrorHandlerMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	auth := middlewares.AuthMiddleware(tokenService)

	handlers.NewAuthHandler(userRepo, tokenService).RegisterRoutes(router)
	handlers.NewExamHandler(attemptService, questionRepo).RegisterRoutes(router, auth)
	handlers.NewProgressHandler(progressService, attemptService).RegisterRoutes(router, auth)
	handlers.NewPlaygroundHandler(validator, sandbox, jobQueue, cache).RegisterRoutes(router, auth)

	port := ":" + config.ServerPort
	log.Printf("Starting server on port %s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
