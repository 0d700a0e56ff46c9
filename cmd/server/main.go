package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/docpipe/api/internal/client"
	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/engine"
	"github.com/docpipe/api/internal/handler"
	"github.com/docpipe/api/internal/llm"
	"github.com/docpipe/api/internal/middleware"
	"github.com/docpipe/api/internal/operation"
	"github.com/docpipe/api/internal/service"
	"github.com/docpipe/api/internal/store"
	"github.com/docpipe/api/internal/worker"
	ws "github.com/docpipe/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize storage (optional - falls back to in-memory blobs)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Fatalf("Failed to initialize R2 client: %v", err)
		}
		storage = r2Client
	} else {
		log.Println("Info: R2 storage not configured, using in-memory storage")
		storage = client.NewMemoryStorage()
	}

	// Initialize stores
	redisStores := store.NewRedisStores(redisClient, cfg.Pipeline.JobRetention)

	// Initialize generation stack
	generators := llm.NewRegistry(
		client.NewGeneratorFactory(cfg.OpenAI, cfg.Gemini), cfg.Retry)
	executors := operation.NewRegistry(generators, cfg.Pricing, cfg.Pipeline.BatchSize)

	// Initialize queue and engine
	queue := worker.NewQueue(asynqClient)
	eng := engine.New(
		redisStores.Pipelines,
		redisStores.Operations,
		redisStores.Documents,
		storage,
		executors,
		queue,
		hub,
	)

	// Initialize services and handlers
	pipelineService := service.NewPipelineService(
		redisStores.Pipelines,
		redisStores.Operations,
		redisStores.Documents,
		storage,
		eng,
		queue,
		validate,
	)
	pipelineHandler := handler.NewPipelineHandler(pipelineService, validate)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    20 * 1024 * 1024, // 20MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		openaiConfigured := cfg.OpenAI.APIKey != ""
		geminiConfigured := cfg.Gemini.APIKey != ""
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"openai": openaiConfigured,
				"gemini": geminiConfigured,
				"r2":     cfg.R2.AccessKeyID != "",
				"redis":  redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	pipelines := api.Group("/pipelines")
	pipelines.Post("/", rateLimiter.PipelineLimit(cfg.RateLimit.PipelinesPerHour), pipelineHandler.Create)
	pipelines.Get("/:jobId", pipelineHandler.Status)
	pipelines.Get("/:jobId/suggestions", pipelineHandler.Suggestions)
	pipelines.Get("/:jobId/download", pipelineHandler.Download)
	pipelines.Post("/:jobId/approve", pipelineHandler.Approve)
	pipelines.Post("/:jobId/cancel", pipelineHandler.Cancel)
	pipelines.Post("/:jobId/pause", pipelineHandler.Pause)
	pipelines.Post("/:jobId/resume", pipelineHandler.Resume)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/pipelines/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, eng)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, eng *engine.Engine) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				worker.QueueStage: 6,
				worker.QueueApply: 4,
			},
			LogLevel: asynqLogLevel,
		},
	)

	pipelineWorker := worker.NewPipelineWorker(eng)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeStage, pipelineWorker.ProcessStageTask)
	mux.HandleFunc(worker.TaskTypeApply, pipelineWorker.ProcessApplyTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
