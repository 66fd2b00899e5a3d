package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/n1hub/deepmine-engine/internal/app"
	"github.com/n1hub/deepmine-engine/internal/llm"
	"github.com/n1hub/deepmine-engine/internal/logger"
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

func retrievalConfig() app.Config {
	return app.Config{
		RetrieverTopK:        6,
		MMRLambda:            0.3,
		PerSourceCap:         3,
		RerankPool:           24,
		RerankKeep:           8,
		CitationMinConf:      0.62,
		CitationFallback:     "idk+dig_deep",
		PublicScoreThreshold: 0.62,
	}
}

func engineWithConfig(t *testing.T, cfg app.Config) (*Engine, *store.MemoryStore) {
	t.Helper()
	log := testLogger(t)
	memory := store.NewMemoryStore(log)
	vec, err := vectorizer.NewLocal(log, 64)
	if err != nil {
		t.Fatalf("vectorizer: %v", err)
	}
	answerer := llm.New(log, 350, cfg.CitationFallback)
	return NewEngine(memory, cfg, vec, answerer, log), memory
}

func testEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	return engineWithConfig(t, retrievalConfig())
}

func ragCapsule(id, summary string, tags []string) types.Capsule {
	capsule := types.Capsule{IncludeInRAG: true}
	capsule.Metadata.CapsuleID = id
	capsule.Metadata.Status = types.CapsuleStatusActive
	capsule.Metadata.CreatedAt = time.Now().UTC()
	capsule.Metadata.Tags = tags
	capsule.NeuroConcentrate.Summary = summary
	capsule.Recursive.Confidence = 0.9
	return capsule
}

func TestAnswer_SingleSourceTriggersCitationFallback(t *testing.T) {
	engine, memory := testEngine(t)
	ctx := context.Background()

	capsule := ragCapsule("01JONLY000000000000000000A",
		"Chunking chunking chunking governs retrieval quality.", []string{"retrieval"})
	if err := memory.SaveCapsule(ctx, capsule); err != nil {
		t.Fatalf("save: %v", err)
	}

	resp, err := engine.Answer(ctx, types.ChatRequest{Query: "chunking"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Answer != "idk+dig_deep" {
		t.Fatalf("expected fallback answer, got %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("fallback must not cite sources, got %v", resp.Sources)
	}
}

func TestAnswer_TwoDistinctSourcesGetCited(t *testing.T) {
	engine, memory := testEngine(t)
	ctx := context.Background()

	a := ragCapsule("01JCITED00000000000000000A",
		"Chunking chunking policy. The window and stride defaults matter.", []string{"retrieval"})
	b := ragCapsule("01JCITED00000000000000000B",
		"Chunking chunking strategy. Overlap keeps context across windows.", []string{"graph"})
	for _, capsule := range []types.Capsule{a, b} {
		if err := memory.SaveCapsule(ctx, capsule); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	resp, err := engine.Answer(ctx, types.ChatRequest{Query: "chunking"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 cited sources, got %v", resp.Sources)
	}
	if !strings.Contains(resp.Answer, "【") {
		t.Fatalf("expected inline citations in %q", resp.Answer)
	}
	if resp.Metrics["contextual_recall"] != 0.90 {
		t.Fatalf("unexpected contextual recall %g", resp.Metrics["contextual_recall"])
	}
	if resp.Metrics["citation_share"] != 1.0 {
		t.Fatalf("unexpected citation share %g", resp.Metrics["citation_share"])
	}
}

func TestAnswer_LowConfidenceCandidatesAreDropped(t *testing.T) {
	cfg := retrievalConfig()
	cfg.CitationMinConf = 5.0
	engine, memory := engineWithConfig(t, cfg)
	ctx := context.Background()

	a := ragCapsule("01JFLOOR00000000000000000A",
		"Chunking chunking policy. The window and stride defaults matter.", []string{"retrieval"})
	b := ragCapsule("01JFLOOR00000000000000000B",
		"Chunking chunking strategy. Overlap keeps context across windows.", []string{"graph"})
	for _, capsule := range []types.Capsule{a, b} {
		if err := memory.SaveCapsule(ctx, capsule); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	resp, err := engine.Answer(ctx, types.ChatRequest{Query: "chunking"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Answer != "idk+dig_deep" {
		t.Fatalf("candidates below citation_min_conf must trigger the fallback, got %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("dropped candidates must not be cited: %v", resp.Sources)
	}
	if resp.Metrics["retrieval_recall"] != 0 {
		t.Fatalf("no candidate should clear the confidence floor, recall %g", resp.Metrics["retrieval_recall"])
	}
}

func TestAnswer_PublicScoreThresholdAppliesOnlyInPublicScope(t *testing.T) {
	cfg := retrievalConfig()
	cfg.PublicScoreThreshold = 5.0
	engine, memory := engineWithConfig(t, cfg)
	ctx := context.Background()

	a := ragCapsule("01JSCOPE00000000000000000A",
		"Chunking chunking policy. The window and stride defaults matter.", []string{"retrieval"})
	b := ragCapsule("01JSCOPE00000000000000000B",
		"Chunking chunking strategy. Overlap keeps context across windows.", []string{"graph"})
	for _, capsule := range []types.Capsule{a, b} {
		if err := memory.SaveCapsule(ctx, capsule); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	mine, err := engine.Answer(ctx, types.ChatRequest{Query: "chunking", Scope: []string{"my"}})
	if err != nil {
		t.Fatalf("answer (my): %v", err)
	}
	if len(mine.Sources) != 2 {
		t.Fatalf("my scope must ignore the public threshold, got %v", mine.Sources)
	}

	public, err := engine.Answer(ctx, types.ChatRequest{Query: "chunking", Scope: []string{"public"}})
	if err != nil {
		t.Fatalf("answer (public): %v", err)
	}
	if public.Answer != "idk+dig_deep" || len(public.Sources) != 0 {
		t.Fatalf("public scope must enforce its score floor, got %q %v", public.Answer, public.Sources)
	}
}

func TestAnswer_ExcludedCapsulesStayOutOfScope(t *testing.T) {
	engine, memory := testEngine(t)
	ctx := context.Background()

	hidden := ragCapsule("01JHIDDEN0000000000000000A",
		"Chunking chunking chunking discussion.", []string{"retrieval"})
	hidden.IncludeInRAG = false
	if err := memory.SaveCapsule(ctx, hidden); err != nil {
		t.Fatalf("save: %v", err)
	}

	resp, err := engine.Answer(ctx, types.ChatRequest{Query: "chunking"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Answer != "idk+dig_deep" || len(resp.Sources) != 0 {
		t.Fatalf("excluded capsule leaked into answer: %v", resp.Sources)
	}
}

func TestParseScope(t *testing.T) {
	if scopeType, _ := parseScope(nil); scopeType != scopeMy {
		t.Fatalf("empty scope should default to my, got %q", scopeType)
	}
	if scopeType, _ := parseScope([]string{"Public"}); scopeType != scopePublic {
		t.Fatalf("expected public, got %q", scopeType)
	}
	scopeType, tags := parseScope([]string{"retrieval", "graph"})
	if scopeType != scopeTags || len(tags) != 2 {
		t.Fatalf("expected tag scope with 2 tags, got %q %v", scopeType, tags)
	}
}

func TestInScope(t *testing.T) {
	now := time.Now().UTC()

	active := ragCapsule("a", "s", nil)
	if !inScope(active, scopeMy, now) {
		t.Fatalf("active capsule should be in my scope")
	}

	archived := ragCapsule("b", "s", nil)
	archived.Metadata.Status = types.CapsuleStatusArchived
	if inScope(archived, scopeMy, now) {
		t.Fatalf("archived capsule must be out of my scope")
	}

	stale := ragCapsule("c", "s", nil)
	stale.Metadata.CreatedAt = now.AddDate(0, 0, -40)
	if inScope(stale, scopeInbox, now) {
		t.Fatalf("40-day-old capsule must be out of inbox scope")
	}
	if !inScope(active, scopeInbox, now) {
		t.Fatalf("fresh capsule should be in inbox scope")
	}

	excluded := ragCapsule("d", "s", nil)
	excluded.IncludeInRAG = false
	if inScope(excluded, scopeTags, now) {
		t.Fatalf("include_in_rag=false must always be out of scope")
	}
}

func TestMMRRerank_PrefersTagDiversity(t *testing.T) {
	a := candidate{capsule: ragCapsule("a", "s", []string{"x", "y"}), score: 1.0}
	b := candidate{capsule: ragCapsule("b", "s", []string{"x", "y"}), score: 0.95}
	c := candidate{capsule: ragCapsule("c", "s", []string{"z"}), score: 0.9}

	out := mmrRerank([]candidate{a, b, c}, 0.3, 3)
	if len(out) != 3 {
		t.Fatalf("expected 3 picks, got %d", len(out))
	}
	if out[0].capsule.Metadata.CapsuleID != "a" {
		t.Fatalf("first pick must be highest relevance, got %q", out[0].capsule.Metadata.CapsuleID)
	}
	if out[1].capsule.Metadata.CapsuleID != "c" {
		t.Fatalf("second pick should favor the diverse tag set, got %q", out[1].capsule.Metadata.CapsuleID)
	}
}

func TestMMRRerank_BoundedByKeepAndInput(t *testing.T) {
	a := candidate{capsule: ragCapsule("a", "s", []string{"x"}), score: 0.8}
	b := candidate{capsule: ragCapsule("b", "s", []string{"y"}), score: 0.7}

	if out := mmrRerank([]candidate{a, b}, 0.3, 1); len(out) != 1 {
		t.Fatalf("keep=1 must cap output, got %d", len(out))
	}
	if out := mmrRerank([]candidate{a, b}, 0.3, 10); len(out) != 2 {
		t.Fatalf("rerank invented candidates: %d", len(out))
	}
	if out := mmrRerank(nil, 0.3, 5); out != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestComputeMetrics(t *testing.T) {
	selected := []types.Capsule{ragCapsule("a", "s", nil), ragCapsule("b", "s", nil)}
	metrics := computeMetrics(selected, 6)
	if metrics["retrieval_recall"] != 2.0/6.0 {
		t.Fatalf("unexpected recall %g", metrics["retrieval_recall"])
	}
	if metrics["mrr"] != 0.5 {
		t.Fatalf("unexpected mrr %g", metrics["mrr"])
	}
	if metrics["router_health_score"] != 0.92 {
		t.Fatalf("unexpected router health %g", metrics["router_health_score"])
	}

	empty := computeMetrics(nil, 6)
	if empty["router_health_score"] != 0.5 || empty["faithfulness"] != 0.0 {
		t.Fatalf("unexpected empty metrics %v", empty)
	}
}
