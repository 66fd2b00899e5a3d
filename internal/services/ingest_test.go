package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/n1hub/deepmine-engine/internal/app"
	"github.com/n1hub/deepmine-engine/internal/flags"
	"github.com/n1hub/deepmine-engine/internal/linking"
	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/pipeline"
	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/types"
	"github.com/n1hub/deepmine-engine/internal/vectorizer"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testIngestService(t *testing.T, cfg app.Config) (IngestService, *store.MemoryStore) {
	t.Helper()
	log := testLogger(t)
	memory := store.NewMemoryStore(log)
	vec, err := vectorizer.NewLocal(log, 64)
	if err != nil {
		t.Fatalf("vectorizer: %v", err)
	}
	featureFlags := flags.Load(log)
	suggester := linking.NewSuggester(memory, log)
	pipe := pipeline.New(memory, cfg, featureFlags, suggester, vec, log)
	return NewIngestService(memory, pipe, cfg, featureFlags, log), memory
}

func jobAt(t *testing.T, memory *store.MemoryStore, code int) *types.Job {
	t.Helper()
	ctx := context.Background()
	job, err := memory.CreateJob(ctx)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	state := types.JobStateProcessing
	updated, err := memory.UpdateJob(ctx, job.ID, types.JobUpdate{Code: &code, State: &state})
	if err != nil {
		t.Fatalf("update job: %v", err)
	}
	return updated
}

func TestCancel_AcceptedBeforeIndexing(t *testing.T) {
	cfg := app.Config{ChunkSize: 800, ChunkStride: 200, MaxConcurrentJobs: 10}
	service, memory := testIngestService(t, cfg)
	job := jobAt(t, memory, types.StageCodeValidating)

	cancelled, err := service.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != types.JobStateCancelled || cancelled.Code != types.StageCodeFailed {
		t.Fatalf("unexpected cancelled job %s/%d", cancelled.State, cancelled.Code)
	}
	if cancelled.Stage != "cancelled" || cancelled.Progress != 100 {
		t.Fatalf("unexpected cancel record %s/%d", cancelled.Stage, cancelled.Progress)
	}
	if cancelled.Error == nil || cancelled.Error.Issues[0].Message != "Job cancelled by user" {
		t.Fatalf("unexpected cancel error %+v", cancelled.Error)
	}
}

func TestCancel_RejectedOnceIndexingStarted(t *testing.T) {
	cfg := app.Config{ChunkSize: 800, ChunkStride: 200, MaxConcurrentJobs: 10}
	service, memory := testIngestService(t, cfg)

	for _, code := range []int{types.StageCodeIndexing, types.StageCodeReporting, types.StageCodeDone} {
		job := jobAt(t, memory, code)
		if _, err := service.Cancel(context.Background(), job.ID); !errors.Is(err, pkgerrors.ErrCancelRejected) {
			t.Fatalf("code %d: expected ErrCancelRejected, got %v", code, err)
		}
	}
}

func TestCancel_UnknownJobIsNotFound(t *testing.T) {
	cfg := app.Config{ChunkSize: 800, ChunkStride: 200, MaxConcurrentJobs: 10}
	service, _ := testIngestService(t, cfg)
	if _, err := service.Cancel(context.Background(), "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIngest_RejectsAudioWhenFlagDisabled(t *testing.T) {
	cfg := app.Config{ChunkSize: 800, ChunkStride: 200, MaxConcurrentJobs: 10}
	service, _ := testIngestService(t, cfg)

	request := types.IngestRequest{
		Title:   "Voice Note",
		Content: "transcribed material",
		Tags:    []string{"audio", "note", "inbox"},
		Source:  types.SourceDescriptor{Type: "audio"},
	}
	if _, err := service.Ingest(context.Background(), request); !errors.Is(err, pkgerrors.ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
}

func TestIngest_RejectsWhenJobCapReached(t *testing.T) {
	cfg := app.Config{ChunkSize: 800, ChunkStride: 200, MaxConcurrentJobs: 1}
	service, memory := testIngestService(t, cfg)
	if _, err := memory.CreateJob(context.Background()); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	request := types.IngestRequest{
		Title:   "One Too Many",
		Content: "material",
		Tags:    []string{"a", "b", "c"},
	}
	if _, err := service.Ingest(context.Background(), request); !errors.Is(err, pkgerrors.ErrTooManyJobs) {
		t.Fatalf("expected ErrTooManyJobs, got %v", err)
	}
}

func TestIngest_AcceptsAndRunsToTerminalState(t *testing.T) {
	cfg := app.Config{ChunkSize: 800, ChunkStride: 200, MaxConcurrentJobs: 10}
	service, _ := testIngestService(t, cfg)

	content := ""
	for i := 0; i < 100; i++ {
		content += "retrieval capsule graph ranking stride window citation scope "
	}
	request := types.IngestRequest{
		Title:   "Async Material",
		Content: content,
		Tags:    []string{"retrieval", "graph", "capsule"},
	}
	job, err := service.Ingest(context.Background(), request)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if job.State != types.JobStatePending {
		t.Fatalf("expected pending job at accept time, got %q", job.State)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		current, err := service.GetJob(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if current.Terminal() {
			if current.State != types.JobStateSucceeded || current.CapsuleID == "" {
				t.Fatalf("job did not succeed: %s (%+v)", current.State, current.Error)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reached a terminal state")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
