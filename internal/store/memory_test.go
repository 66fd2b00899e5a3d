package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/n1hub/deepmine-engine/internal/logger"
	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func storedCapsule(id string, tags []string, includeInRAG bool) types.Capsule {
	capsule := types.Capsule{IncludeInRAG: includeInRAG}
	capsule.Metadata.CapsuleID = id
	capsule.Metadata.Status = types.CapsuleStatusActive
	capsule.Metadata.CreatedAt = time.Now().UTC()
	capsule.Metadata.Tags = tags
	capsule.NeuroConcentrate.Summary = "Chunking policy for retrieval windows."
	return capsule
}

func TestCreateJob_StartsQueued(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	job, err := memory.CreateJob(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Code != types.StageCodeQueued || job.Stage != "queued" {
		t.Fatalf("unexpected initial stage %d/%s", job.Code, job.Stage)
	}
	if job.State != types.JobStatePending || job.Progress != 0 {
		t.Fatalf("unexpected initial state %s/%d", job.State, job.Progress)
	}
	if len(job.ID) != 26 {
		t.Fatalf("job id is not a ULID: %q", job.ID)
	}
}

func TestUpdateJob_AppliesPartialUpdate(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	job, _ := memory.CreateJob(ctx)

	code := types.StageCodeSegmenting
	progress := 30
	updated, err := memory.UpdateJob(ctx, job.ID, types.JobUpdate{Code: &code, Progress: &progress})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Code != 130 || updated.Progress != 30 {
		t.Fatalf("update not applied: %d/%d", updated.Code, updated.Progress)
	}
	if updated.Stage != "queued" {
		t.Fatalf("nil field overwrote stage: %q", updated.Stage)
	}
}

func TestUpdateJob_UnknownIDIsNotFound(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	code := 130
	if _, err := memory.UpdateJob(context.Background(), "missing", types.JobUpdate{Code: &code}); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetCapsule_ReturnsClone(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	capsule := storedCapsule("01JCLONE00000000000000000A", []string{"retrieval", "graph", "capsule"}, true)
	if err := memory.SaveCapsule(ctx, capsule); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := memory.GetCapsule(ctx, capsule.Metadata.CapsuleID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Metadata.Tags[0] = "mutated"

	again, _ := memory.GetCapsule(ctx, capsule.Metadata.CapsuleID)
	if again.Metadata.Tags[0] != "retrieval" {
		t.Fatalf("stored capsule was mutated through a returned copy")
	}
}

func TestListCapsules_FiltersByRAGEligibility(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	memory.SaveCapsule(ctx, storedCapsule("01JLISTA00000000000000000A", []string{"a"}, true))
	memory.SaveCapsule(ctx, storedCapsule("01JLISTB00000000000000000B", []string{"b"}, false))

	include := true
	eligible, err := memory.ListCapsules(ctx, &include)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(eligible) != 1 || !eligible[0].IncludeInRAG {
		t.Fatalf("expected only the eligible capsule, got %d", len(eligible))
	}
	all, _ := memory.ListCapsules(ctx, nil)
	if len(all) != 2 {
		t.Fatalf("expected both capsules, got %d", len(all))
	}
}

func TestToggleCapsule(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	capsule := storedCapsule("01JTOGGLE0000000000000000A", []string{"a"}, true)
	memory.SaveCapsule(ctx, capsule)

	toggled, err := memory.ToggleCapsule(ctx, capsule.Metadata.CapsuleID, false)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.IncludeInRAG {
		t.Fatalf("toggle did not apply")
	}
	if _, err := memory.ToggleCapsule(ctx, "missing", true); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCapsuleTags_NormalizesAndValidates(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	capsule := storedCapsule("01JTAGS000000000000000000A", []string{"a", "b", "c"}, true)
	memory.SaveCapsule(ctx, capsule)

	updated, err := memory.UpdateCapsuleTags(ctx, capsule.Metadata.CapsuleID, []string{" Retrieval ", "GRAPH", "capsule"})
	if err != nil {
		t.Fatalf("update tags: %v", err)
	}
	if updated.Metadata.Tags[0] != "retrieval" || updated.Metadata.Tags[1] != "graph" {
		t.Fatalf("tags not normalized: %v", updated.Metadata.Tags)
	}

	if _, err := memory.UpdateCapsuleTags(ctx, capsule.Metadata.CapsuleID, []string{"one", "two"}); err == nil {
		t.Fatalf("expected rejection for too few tags")
	}
	_, err = memory.UpdateCapsuleTags(ctx, capsule.Metadata.CapsuleID, []string{"ok", "fine", "bob@example.com"})
	if err == nil || !strings.Contains(err.Error(), "PII") {
		t.Fatalf("expected PII rejection, got %v", err)
	}
}

func TestUpdateCapsuleStatus_RejectsUnknownStatus(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	capsule := storedCapsule("01JSTATUS0000000000000000A", []string{"a", "b", "c"}, true)
	memory.SaveCapsule(ctx, capsule)

	if _, err := memory.UpdateCapsuleStatus(ctx, capsule.Metadata.CapsuleID, "retired"); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	updated, err := memory.UpdateCapsuleStatus(ctx, capsule.Metadata.CapsuleID, types.CapsuleStatusArchived)
	if err != nil || updated.Metadata.Status != types.CapsuleStatusArchived {
		t.Fatalf("archive failed: %v %q", err, updated.Metadata.Status)
	}
}

func TestSearch_BoostsEligibleAndDropsZeroScores(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()

	eligible := storedCapsule("01JRANKA00000000000000000A", []string{"retrieval"}, true)
	excluded := storedCapsule("01JRANKB00000000000000000B", []string{"retrieval"}, false)
	excluded.NeuroConcentrate.Summary = "Chunking chunking notes for retrieval windows."
	unrelated := storedCapsule("01JRANKC00000000000000000C", []string{"other"}, false)
	unrelated.NeuroConcentrate.Summary = "Nothing relevant here."
	for _, capsule := range []types.Capsule{eligible, excluded, unrelated} {
		memory.SaveCapsule(ctx, capsule)
	}

	results, err := memory.Search(ctx, "chunking", nil, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results))
	}
	if results[0].Metadata.CapsuleID != eligible.Metadata.CapsuleID {
		t.Fatalf("eligible capsule should rank first, got %q", results[0].Metadata.CapsuleID)
	}
}

func TestSearch_ScopeTagsFilter(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	memory.SaveCapsule(ctx, storedCapsule("01JSCOPEA0000000000000000A", []string{"retrieval"}, true))
	memory.SaveCapsule(ctx, storedCapsule("01JSCOPEB0000000000000000B", []string{"graph"}, true))

	results, err := memory.Search(ctx, "chunking", []string{"graph"}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Metadata.Tags[0] != "graph" {
		t.Fatalf("scope filter leaked: %v", results)
	}
}

func TestVectorSearch_RanksByCosine(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	memory.SaveCapsule(ctx, storedCapsule("01JVECA000000000000000000A", []string{"a"}, true))
	memory.SaveCapsule(ctx, storedCapsule("01JVECB000000000000000000B", []string{"b"}, true))
	memory.SaveVector(ctx, "01JVECA000000000000000000A", []float32{1, 0, 0})
	memory.SaveVector(ctx, "01JVECB000000000000000000B", []float32{0, 1, 0})

	results, err := memory.VectorSearch(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Capsule.Metadata.CapsuleID != "01JVECA000000000000000000A" || results[0].Score < 0.99 {
		t.Fatalf("best match not first: %q score %g", results[0].Capsule.Metadata.CapsuleID, results[0].Score)
	}
}

func TestPurgeArtifacts_RemovesOnlyExpired(t *testing.T) {
	memory := NewMemoryStore(testLogger(t))
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -10)
	memory.RecordArtifact(ctx, "job-1", types.Artifact{Kind: "capsule", URI: "capsules/a", ExpiresAt: &old})
	memory.RecordArtifact(ctx, "job-1", types.Artifact{Kind: "capsule", URI: "capsules/b"})

	purged, err := memory.PurgeArtifacts(ctx, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
	remaining, _ := memory.ListArtifacts(ctx, "job-1")
	if len(remaining) != 1 || remaining[0].URI != "capsules/b" {
		t.Fatalf("wrong artifact survived: %v", remaining)
	}
}
