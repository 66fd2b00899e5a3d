package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/n1hub/deepmine-engine/internal/app"
	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/services"
	"github.com/n1hub/deepmine-engine/internal/types"
)

type IngestHandler struct {
	ingestService services.IngestService
	cfg           app.Config
}

func NewIngestHandler(ingestService services.IngestService, cfg app.Config) *IngestHandler {
	return &IngestHandler{ingestService: ingestService, cfg: cfg}
}

func (ih *IngestHandler) Ingest(c *gin.Context) {
	maxBytes := int64(ih.cfg.MaxPayloadMB) * 1024 * 1024
	if c.Request.ContentLength > maxBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large",
			errors.New("payload exceeds maximum size"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	var request types.IngestRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if request.Content == "" || len(request.Tags) == 0 {
		RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("content and at least one tag are required"))
		return
	}

	job, err := ih.ingestService.Ingest(c.Request.Context(), request)
	switch {
	case errors.Is(err, pkgerrors.ErrTooManyJobs):
		c.Header("Retry-After", "60")
		RespondError(c, http.StatusTooManyRequests, "too_many_jobs", err)
		return
	case errors.Is(err, pkgerrors.ErrFeatureDisabled):
		RespondError(c, http.StatusForbidden, "feature_disabled", err)
		return
	case err != nil:
		RespondError(c, http.StatusInternalServerError, "ingest_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "state": job.State})
}
