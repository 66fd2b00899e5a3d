package services

import (
	"context"

	"github.com/n1hub/deepmine-engine/internal/app"
	"github.com/n1hub/deepmine-engine/internal/flags"
	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/pipeline"
	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/types"
)

// IngestService owns job lifecycle: admission checks, launching the pipeline,
// and the cancellation rule.
type IngestService interface {
	Ingest(ctx context.Context, request types.IngestRequest) (*types.Job, error)
	GetJob(ctx context.Context, jobID string) (*types.Job, error)
	ListJobs(ctx context.Context) ([]*types.Job, error)
	Cancel(ctx context.Context, jobID string) (*types.Job, error)
}

type ingestService struct {
	store store.Store
	pipe  *pipeline.Pipeline
	cfg   app.Config
	flags *flags.FeatureFlags
	log   *logger.Logger
}

func NewIngestService(s store.Store, pipe *pipeline.Pipeline, cfg app.Config, ff *flags.FeatureFlags, baseLog *logger.Logger) IngestService {
	return &ingestService{
		store: s,
		pipe:  pipe,
		cfg:   cfg,
		flags: ff,
		log:   baseLog.With("service", "IngestService"),
	}
}

func (s *ingestService) Ingest(ctx context.Context, request types.IngestRequest) (*types.Job, error) {
	request.ApplyDefaults()

	if request.Source.Type == "audio" && !s.flags.Enabled(flags.AudioIngest) {
		return nil, pkgerrors.ErrFeatureDisabled
	}

	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, job := range jobs {
		if job.State == types.JobStatePending || job.State == types.JobStateProcessing {
			active++
		}
	}
	if active >= s.cfg.MaxConcurrentJobs {
		return nil, pkgerrors.ErrTooManyJobs
	}

	job, err := s.store.CreateJob(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("Ingest accepted", "job_id", job.ID, "title", request.Title)

	// The request outlives the HTTP call; the pipeline runs on its own context.
	go func() {
		if _, err := s.pipe.Run(context.Background(), job.ID, request); err != nil {
			s.log.Warn("Ingest job failed", "job_id", job.ID, "error", err)
		}
	}()
	return job, nil
}

func (s *ingestService) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

func (s *ingestService) ListJobs(ctx context.Context) ([]*types.Job, error) {
	return s.store.ListJobs(ctx)
}

// Cancel rejects once the job has reached indexing (code >= 180); before that
// the job row flips to cancelled. The running stage is not interrupted.
func (s *ingestService) Cancel(ctx context.Context, jobID string) (*types.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Code >= types.StageCodeIndexing {
		return nil, pkgerrors.ErrCancelRejected
	}
	update := types.JobUpdate{
		Code:     intPtr(types.StageCodeFailed),
		Stage:    strPtr("cancelled"),
		State:    strPtr(types.JobStateCancelled),
		Progress: intPtr(100),
		Error: &types.JobError{
			Code:   types.StageCodeFailed,
			Stage:  "cancelled",
			Issues: []types.JobErrorIssue{{Path: "/job", Message: "Job cancelled by user"}},
		},
	}
	cancelled, err := s.store.UpdateJob(ctx, jobID, update)
	if err != nil {
		return nil, err
	}
	s.log.Info("Job cancelled", "job_id", jobID)
	return cancelled, nil
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
