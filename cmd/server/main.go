package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mockmate-backend/internal/config"
	"mockmate-backend/internal/database"
	"mockmate-backend/internal/handlers"
	"mockmate-backend/internal/middleware"
	"mockmate-backend/internal/repository"
	"mockmate-backend/internal/router"
	"mockmate-backend/internal/services"
	"mockmate-backend/internal/websocket"
	"mockmate-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting MockMate Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	conversationRepo := repository.NewConversationRepo(pool)
	evaluationRepo := repository.NewEvaluationRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	mediaRepo := repository.NewMediaRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize Model Client ────
	modelClient, err := services.NewModelClient(
		cfg.GeminiAPIKey,
		cfg.ModelProvider,
		cfg.ModelName,
		cfg.ModelMaxRetries,
		cfg.ModelConcurrentReqs,
		usageRepo,
	)
	if err != nil {
		log.Fatalf("✗ Model client initialization failed: %v", err)
	}
	defer modelClient.Close()
	log.Println("✓ Model client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	authService := services.NewAuthService(userRepo, jwtAuth)
	resumeService := services.NewResumeService(services.NewResumeExtractor())
	commService := services.NewCommunicationService(redisClients.Queue)

	agent := services.NewInterviewAgent(modelClient, cfg.MemoryWindow)
	synthesizer := services.NewEvaluationSynthesizer(modelClient, sessionRepo, conversationRepo, mediaRepo, evaluationRepo)
	coordinator := services.NewSessionCoordinator(sessionRepo, conversationRepo, agent, synthesizer, commService, commService)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(coordinator, redisClients.Queue)
	evaluationHandler := handlers.NewEvaluationHandler(evaluationRepo, usageRepo, jobRepo, coordinator, redisClients.Queue)
	mediaHandler := handlers.NewMediaHandler(mediaRepo, coordinator, cfg.StoragePath)
	resumeHandler := handlers.NewResumeHandler(resumeService)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		synthesizer,
		emailService,
		jobRepo,
		sessionRepo,
		cfg.WorkerCount,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		sessionHandler,
		evaluationHandler,
		mediaHandler,
		resumeHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ MockMate Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
