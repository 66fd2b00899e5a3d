package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/n1hub/deepmine-engine/internal/app"
	"github.com/n1hub/deepmine-engine/internal/bootstrap"
	"github.com/n1hub/deepmine-engine/internal/flags"
	"github.com/n1hub/deepmine-engine/internal/handlers"
	"github.com/n1hub/deepmine-engine/internal/linking"
	"github.com/n1hub/deepmine-engine/internal/llm"
	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/middleware"
	"github.com/n1hub/deepmine-engine/internal/observability"
	"github.com/n1hub/deepmine-engine/internal/pipeline"
	"github.com/n1hub/deepmine-engine/internal/rag"
	"github.com/n1hub/deepmine-engine/internal/retention"
	"github.com/n1hub/deepmine-engine/internal/server"
	"github.com/n1hub/deepmine-engine/internal/services"
	"github.com/n1hub/deepmine-engine/internal/sse"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/vectorizer"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, relying on process environment")
	}
	log.Info("Loading configuration from main...")
	cfg := app.LoadConfig(log)
	featureFlags := flags.Load(log)

	// Store
	log.Info("Setting up store from main...", "backend", cfg.StoreBackend)
	var backing store.Store
	switch cfg.StoreBackend {
	case "postgres":
		pgStore, err := store.NewPostgresStore(log)
		if err != nil {
			log.Warn("Postgres init failed, falling back to memory store", "error", err)
			backing = store.NewMemoryStore(log)
		} else {
			backing = pgStore
		}
	case "sqlite":
		sqliteStore, err := store.NewSQLiteStore(log, cfg.SQLitePath)
		if err != nil {
			log.Warn("SQLite init failed, falling back to memory store", "error", err)
			backing = store.NewMemoryStore(log)
		} else {
			backing = sqliteStore
		}
	default:
		backing = store.NewMemoryStore(log)
	}

	// SSE
	log.Info("Setting up SSE hub now...")
	hub := sse.NewHub(log)
	engineStore := services.NewJobEventStore(backing, hub)

	// Collaborators
	vec, err := vectorizer.New(log, cfg.EmbeddingDimension)
	if err != nil {
		log.Fatal("Vectorizer init failed", "error", err)
	}
	answerer := llm.New(log, cfg.AnswerMaxTokens, cfg.CitationFallback)
	suggester := linking.NewSuggester(engineStore, log)

	// Services
	log.Info("Setting up services from main...")
	pipe := pipeline.New(engineStore, cfg, featureFlags, suggester, vec, log)
	ingestService := services.NewIngestService(engineStore, pipe, cfg, featureFlags, log)
	capsuleService := services.NewCapsuleService(engineStore, log)
	ragEngine := rag.NewEngine(engineStore, cfg, vec, answerer, log)
	reporter := observability.NewReporter(engineStore, cfg, log)

	// Bootstrap
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := bootstrap.Seed(seedCtx, engineStore, pipe, log); err != nil {
		log.Warn("Bootstrap seeding failed", "error", err)
	}
	seedCancel()

	// Retention
	retentionLoop := retention.NewLoop(engineStore, cfg.RetentionDays, time.Hour, log)
	retentionLoop.Start()
	defer retentionLoop.Stop()

	// Middleware + handlers
	rateLimiter := middleware.NewRateLimiter(log, cfg.RedisURL)
	router := server.NewRouter(server.RouterConfig{
		Config:               cfg,
		RateLimiter:          rateLimiter,
		IngestHandler:        handlers.NewIngestHandler(ingestService, cfg),
		JobsHandler:          handlers.NewJobsHandler(ingestService),
		CapsulesHandler:      handlers.NewCapsulesHandler(capsuleService),
		ChatHandler:          handlers.NewChatHandler(ragEngine),
		ValidateHandler:      handlers.NewValidateHandler(),
		ObservabilityHandler: handlers.NewObservabilityHandler(reporter),
		HealthHandler:        handlers.NewHealthHandler(engineStore, rateLimiter),
		EventsHandler:        handlers.NewEventsHandler(hub),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("DeepMine engine listening", "port", cfg.Port, "version", cfg.EngineVersion)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
	}
}
