package vectorizer

import (
	"context"
	"math"
	"testing"

	"github.com/n1hub/deepmine-engine/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestLocalEmbed_FixedDimensionAndUnitNorm(t *testing.T) {
	vec, err := NewLocal(testLogger(t), 64)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := vec.Embed(context.Background(), "chunk size and stride tune retrieval windows")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(out) != 64 {
		t.Fatalf("expected 64 dimensions, got %d", len(out))
	}
	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Fatalf("embedding not unit-normalized: %g", norm)
	}
}

func TestLocalEmbed_Deterministic(t *testing.T) {
	vec, _ := NewLocal(testLogger(t), 32)
	a, _ := vec.Embed(context.Background(), "capsule graph retrieval")
	b, _ := vec.Embed(context.Background(), "capsule graph retrieval")
	if Cosine(a, b) < 0.9999 {
		t.Fatalf("same text produced different embeddings")
	}
}

func TestNewLocal_RejectsNonPositiveDimension(t *testing.T) {
	if _, err := NewLocal(testLogger(t), 0); err == nil {
		t.Fatalf("expected dimension error")
	}
}

func TestCosine_EdgeCases(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("identical vectors should score 1, got %g", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors should score 0, got %g", got)
	}
	if got := Cosine(nil, []float32{1}); got != 0 {
		t.Fatalf("mismatched lengths should score 0, got %g", got)
	}
}
