package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/n1hub/deepmine-engine/internal/middleware"
	"github.com/n1hub/deepmine-engine/internal/observability"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/types"
)

type ObservabilityHandler struct {
	reporter *observability.Reporter
}

func NewObservabilityHandler(reporter *observability.Reporter) *ObservabilityHandler {
	return &ObservabilityHandler{reporter: reporter}
}

func (oh *ObservabilityHandler) Retrieval(c *gin.Context) {
	report, err := oh.reporter.RetrievalMetrics(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "report_failed", err)
		return
	}
	RespondOK(c, report)
}

func (oh *ObservabilityHandler) Router(c *gin.Context) {
	report, err := oh.reporter.RouterDiagnostics(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "report_failed", err)
		return
	}
	RespondOK(c, report)
}

func (oh *ObservabilityHandler) SemanticHash(c *gin.Context) {
	report, err := oh.reporter.SemanticHashIntegrity(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "report_failed", err)
		return
	}
	RespondOK(c, report)
}

func (oh *ObservabilityHandler) PII(c *gin.Context) {
	report, err := oh.reporter.PIIScan(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "report_failed", err)
		return
	}
	RespondOK(c, report)
}

func (oh *ObservabilityHandler) Standard(c *gin.Context) {
	reports, err := oh.reporter.StandardReports(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "report_failed", err)
		return
	}
	RespondOK(c, reports)
}

type HealthHandler struct {
	store   store.Store
	limiter *middleware.RateLimiter
}

func NewHealthHandler(s store.Store, limiter *middleware.RateLimiter) *HealthHandler {
	return &HealthHandler{store: s, limiter: limiter}
}

func (hh *HealthHandler) Healthz(c *gin.Context) {
	components := make(map[string]types.HealthComponent)
	overall := "ok"

	if err := hh.store.Ping(c.Request.Context()); err != nil {
		components["database"] = types.HealthComponent{Status: "unhealthy", Error: err.Error()}
		overall = "degraded"
	} else {
		components["database"] = types.HealthComponent{Status: "healthy"}
	}

	if hh.limiter != nil && hh.limiter.Enabled() {
		if err := hh.limiter.Ping(c.Request.Context()); err != nil {
			components["redis"] = types.HealthComponent{Status: "unhealthy", Error: err.Error()}
		} else {
			components["redis"] = types.HealthComponent{Status: "healthy"}
		}
	} else {
		components["redis"] = types.HealthComponent{Status: "not_configured"}
	}

	RespondOK(c, types.HealthResponse{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Components: components,
	})
}

func (hh *HealthHandler) Livez(c *gin.Context) {
	RespondOK(c, types.HealthResponse{Status: "live", Timestamp: time.Now().UTC()})
}

// Readyz reports whether the engine can serve traffic. The store must answer;
// redis stays optional so a missing limiter never blocks readiness.
func (hh *HealthHandler) Readyz(c *gin.Context) {
	components := make(map[string]types.HealthComponent)
	ready := true

	if err := hh.store.Ping(c.Request.Context()); err != nil {
		components["database"] = types.HealthComponent{Status: "unhealthy", Error: err.Error()}
		ready = false
	} else {
		components["database"] = types.HealthComponent{Status: "healthy"}
	}

	if hh.limiter != nil && hh.limiter.Enabled() {
		if err := hh.limiter.Ping(c.Request.Context()); err != nil {
			components["redis"] = types.HealthComponent{Status: "unhealthy", Error: err.Error()}
		} else {
			components["redis"] = types.HealthComponent{Status: "healthy"}
		}
	} else {
		components["redis"] = types.HealthComponent{Status: "not_configured"}
	}

	response := types.HealthResponse{
		Status:     "ready",
		Timestamp:  time.Now().UTC(),
		Components: components,
	}
	if !ready {
		response.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	RespondOK(c, response)
}
