package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/services"
)

type JobsHandler struct {
	ingestService services.IngestService
}

func NewJobsHandler(ingestService services.IngestService) *JobsHandler {
	return &JobsHandler{ingestService: ingestService}
}

func (jh *JobsHandler) ListJobs(c *gin.Context) {
	jobs, err := jh.ingestService.ListJobs(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_jobs_failed", err)
		return
	}
	RespondOK(c, jobs)
}

func (jh *JobsHandler) GetJob(c *gin.Context) {
	job, err := jh.ingestService.GetJob(c.Request.Context(), c.Param("id"))
	if errors.Is(err, pkgerrors.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_job_failed", err)
		return
	}
	RespondOK(c, job)
}

func (jh *JobsHandler) CancelJob(c *gin.Context) {
	job, err := jh.ingestService.Cancel(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	case errors.Is(err, pkgerrors.ErrCancelRejected):
		RespondError(c, http.StatusBadRequest, "cancel_rejected", err)
		return
	case err != nil:
		RespondError(c, http.StatusInternalServerError, "cancel_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "cancelled", "job_id": job.ID})
}
