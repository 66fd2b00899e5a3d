package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/n1hub/deepmine-engine/internal/app"
	"github.com/n1hub/deepmine-engine/internal/flags"
	"github.com/n1hub/deepmine-engine/internal/linking"
	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/textutil"
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

func testPipeline(t *testing.T, cfg app.Config) (*Pipeline, *store.MemoryStore) {
	t.Helper()
	log := testLogger(t)
	memory := store.NewMemoryStore(log)
	vec, err := vectorizer.NewLocal(log, 64)
	if err != nil {
		t.Fatalf("vectorizer: %v", err)
	}
	suggester := linking.NewSuggester(memory, log)
	return New(memory, cfg, flags.Load(log), suggester, vec, log), memory
}

func defaultTestConfig() app.Config {
	return app.Config{
		ChunkSize:   800,
		ChunkStride: 200,
	}
}

func contentWords(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("signalword%d", i)
	}
	return strings.Join(out, " ")
}

func TestSegment_ShortInputYieldsOneWindow(t *testing.T) {
	p, _ := testPipeline(t, defaultTestConfig())
	segments := p.segment(contentWords(300))
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].StartToken != 0 || segments[0].EndToken != 299 {
		t.Fatalf("unexpected token span %d-%d", segments[0].StartToken, segments[0].EndToken)
	}
}

func TestAssignChunkIDs_DeterministicFormat(t *testing.T) {
	p, _ := testPipeline(t, defaultTestConfig())
	segments := p.segment(contentWords(300))
	assignChunkIDs("01JCAPSULEXXXXXXXXXXXXXXXX", segments)
	want := "01JCAPSULEXXXXXXXXXXXXXXXX::c0001@t0-299"
	if segments[0].ChunkID != want {
		t.Fatalf("chunk id %q, want %q", segments[0].ChunkID, want)
	}
}

func TestSegment_WindowsOverlapByStride(t *testing.T) {
	cfg := app.Config{ChunkSize: 10, ChunkStride: 3}
	p, _ := testPipeline(t, cfg)
	segments := p.segment(contentWords(25))
	if len(segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(segments))
	}
	if segments[1].StartToken != 7 || segments[1].EndToken != 16 {
		t.Fatalf("unexpected second window %d-%d", segments[1].StartToken, segments[1].EndToken)
	}
	if segments[3].StartToken != 21 || segments[3].EndToken != 24 {
		t.Fatalf("unexpected last window %d-%d", segments[3].StartToken, segments[3].EndToken)
	}
}

func TestExtractKeywords_FrequencyRankedAndPadded(t *testing.T) {
	keywords := extractKeywords("alpha alpha beta")
	if len(keywords) != 5 {
		t.Fatalf("expected padding to 5, got %v", keywords)
	}
	if keywords[0] != "alpha" || keywords[1] != "beta" {
		t.Fatalf("unexpected ranking %v", keywords)
	}
	if keywords[4] != "signal-5" {
		t.Fatalf("unexpected pad token %q", keywords[4])
	}
}

func TestRun_CompletesAndPersistsCapsule(t *testing.T) {
	p, memory := testPipeline(t, defaultTestConfig())
	ctx := context.Background()
	job, err := memory.CreateJob(ctx)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	request := types.IngestRequest{
		Title:   "Bulk Material",
		Content: contentWords(300),
		Tags:    []string{"Retrieval", "graph", "capsule"},
	}
	request.ApplyDefaults()

	capsule, err := p.Run(ctx, job.ID, request)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	final, err := memory.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.Code != types.StageCodeDone || final.State != types.JobStateSucceeded || final.Progress != 100 {
		t.Fatalf("unexpected final job %d/%s/%d", final.Code, final.State, final.Progress)
	}
	if final.CapsuleID != capsule.Metadata.CapsuleID {
		t.Fatalf("job capsule id %q != %q", final.CapsuleID, capsule.Metadata.CapsuleID)
	}

	stored, err := memory.GetCapsule(ctx, capsule.Metadata.CapsuleID)
	if err != nil {
		t.Fatalf("get capsule: %v", err)
	}
	if stored.Metadata.SemanticHash != stored.NeuroConcentrate.SemanticHash {
		t.Fatalf("hash not mirrored")
	}
	if wc := textutil.WordCount(stored.NeuroConcentrate.Summary); wc < 70 || wc > 140 {
		t.Fatalf("summary word count %d out of range", wc)
	}
	if stored.Metadata.Tags[0] != "retrieval" {
		t.Fatalf("tags not lowercased: %v", stored.Metadata.Tags)
	}

	artifacts, err := memory.ListArtifacts(ctx, job.ID)
	if err != nil || len(artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %v (%v)", artifacts, err)
	}
	if artifacts[0].Kind != "capsule" {
		t.Fatalf("unexpected artifact kind %q", artifacts[0].Kind)
	}
}

func TestRun_LinksToTagSharingNeighbor(t *testing.T) {
	p, memory := testPipeline(t, defaultTestConfig())
	ctx := context.Background()

	neighbor := types.Capsule{IncludeInRAG: true}
	neighbor.Metadata.CapsuleID = "01JNEIGHBORXXXXXXXXXXXXXXX"
	neighbor.Metadata.Status = types.CapsuleStatusActive
	neighbor.Metadata.CreatedAt = time.Now().UTC()
	neighbor.Metadata.Tags = []string{"retrieval", "graph", "capsule"}
	neighbor.Recursive.Confidence = 0.9
	if err := memory.SaveCapsule(ctx, neighbor); err != nil {
		t.Fatalf("seed neighbor: %v", err)
	}

	job, _ := memory.CreateJob(ctx)
	request := types.IngestRequest{
		Title:   "Follow-up",
		Content: contentWords(200),
		Tags:    []string{"retrieval", "graph", "capsule"},
	}
	request.ApplyDefaults()

	capsule, err := p.Run(ctx, job.ID, request)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	found := false
	for _, link := range capsule.Recursive.Links {
		if link.TargetCapsuleID == neighbor.Metadata.CapsuleID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a link to the tag-sharing neighbor, got %v", capsule.Recursive.Links)
	}
}

func TestRun_PrivacyGuardrailFailsJob(t *testing.T) {
	p, memory := testPipeline(t, defaultTestConfig())
	ctx := context.Background()
	job, _ := memory.CreateJob(ctx)

	request := types.IngestRequest{
		Title:   "Leaky Material",
		Content: contentWords(80) + " contact jane.doe@example.com today",
		Tags:    []string{"retrieval", "graph", "capsule"},
	}
	request.ApplyDefaults()

	if _, err := p.Run(ctx, job.ID, request); err == nil {
		t.Fatalf("expected guardrail failure")
	}
	final, _ := memory.GetJob(ctx, job.ID)
	if final.Code != types.StageCodeFailed || final.State != types.JobStateFailed {
		t.Fatalf("unexpected failed job %d/%s", final.Code, final.State)
	}
	if final.Error == nil || final.Error.Stage != "assembling" {
		t.Fatalf("expected assembling stage error, got %+v", final.Error)
	}
	if !strings.Contains(final.Error.Issues[0].Message, "Privacy guardrail") {
		t.Fatalf("unexpected issue %q", final.Error.Issues[0].Message)
	}
}

func TestRun_HighPrivacyRedactsBeforeAssembly(t *testing.T) {
	p, memory := testPipeline(t, defaultTestConfig())
	ctx := context.Background()
	job, _ := memory.CreateJob(ctx)

	request := types.IngestRequest{
		Title:        "Sensitive Material",
		Content:      contentWords(80) + " contact jane.doe@example.com today",
		Tags:         []string{"retrieval", "graph", "capsule"},
		PrivacyLevel: types.PrivacyLevelHigh,
	}
	request.ApplyDefaults()

	capsule, err := p.Run(ctx, job.ID, request)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(capsule.CorePayload.Content, "example.com") {
		t.Fatalf("email survived high-privacy redaction")
	}
	if !strings.Contains(capsule.CorePayload.Content, "[REDACTED:EMAIL]") {
		t.Fatalf("missing redaction placeholder in content")
	}
}

func TestRun_ThinMaterialFailsValidation(t *testing.T) {
	p, memory := testPipeline(t, defaultTestConfig())
	ctx := context.Background()
	job, _ := memory.CreateJob(ctx)

	request := types.IngestRequest{
		Title:   "Thin Material",
		Content: contentWords(20),
		Tags:    []string{"retrieval", "graph", "capsule"},
	}
	request.ApplyDefaults()

	if _, err := p.Run(ctx, job.ID, request); err == nil {
		t.Fatalf("expected validation failure for thin material")
	}
	final, _ := memory.GetJob(ctx, job.ID)
	if final.Error == nil || final.Error.Stage != "validating" {
		t.Fatalf("expected validating stage error, got %+v", final.Error)
	}
	if final.Error.Issues[0].Path != "/neuro_concentrate/summary" {
		t.Fatalf("unexpected issue path %q", final.Error.Issues[0].Path)
	}
}
