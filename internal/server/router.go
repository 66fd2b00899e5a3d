package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/n1hub/deepmine-engine/internal/app"
	"github.com/n1hub/deepmine-engine/internal/handlers"
	"github.com/n1hub/deepmine-engine/internal/middleware"
)

type RouterConfig struct {
	Config               app.Config
	RateLimiter          *middleware.RateLimiter
	IngestHandler        *handlers.IngestHandler
	JobsHandler          *handlers.JobsHandler
	CapsulesHandler      *handlers.CapsulesHandler
	ChatHandler          *handlers.ChatHandler
	ValidateHandler      *handlers.ValidateHandler
	ObservabilityHandler *handlers.ObservabilityHandler
	HealthHandler        *handlers.HealthHandler
	EventsHandler        *handlers.EventsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", cfg.HealthHandler.Healthz)
	router.GET("/livez", cfg.HealthHandler.Livez)
	router.GET("/readyz", cfg.HealthHandler.Readyz)

	// Ingestion
	router.POST("/ingest",
		cfg.RateLimiter.Limit("ingest", cfg.Config.RateLimitUpload),
		cfg.IngestHandler.Ingest)

	// Jobs
	router.GET("/jobs", cfg.JobsHandler.ListJobs)
	router.GET("/jobs/:id", cfg.JobsHandler.GetJob)
	router.DELETE("/jobs/:id", cfg.JobsHandler.CancelJob)

	// Capsules
	router.GET("/capsules",
		cfg.RateLimiter.Limit("capsules", cfg.Config.RateLimitPublic),
		cfg.CapsulesHandler.ListCapsules)
	router.GET("/capsules/:id", cfg.CapsulesHandler.GetCapsule)
	router.PATCH("/capsules/:id", cfg.CapsulesHandler.PatchCapsule)

	// Chat
	router.POST("/chat",
		cfg.RateLimiter.Limit("chat", cfg.Config.RateLimitChat),
		cfg.ChatHandler.Chat)

	// Validation
	router.POST("/validate/capsule", cfg.ValidateHandler.ValidateCapsule)
	router.POST("/validate/batch", cfg.ValidateHandler.ValidateBatch)

	// Observability
	router.GET("/observability/retrieval", cfg.ObservabilityHandler.Retrieval)
	router.GET("/observability/router", cfg.ObservabilityHandler.Router)
	router.GET("/observability/semantic-hash", cfg.ObservabilityHandler.SemanticHash)
	router.GET("/observability/pii", cfg.ObservabilityHandler.PII)
	router.GET("/observability/standard", cfg.ObservabilityHandler.Standard)

	// Events
	router.GET("/events/stream", cfg.EventsHandler.Stream)

	return router
}
