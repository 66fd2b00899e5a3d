package vectorizer

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/textutil"
)

// Vectorizer turns text into a fixed-length embedding. The dimension is fixed
// at startup; every call must return exactly that length or fail loudly.
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Cosine similarity between two vectors; 0 for mismatched or empty inputs.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// localVectorizer projects token counts onto a fixed-size vector via FNV
// hashing and L2-normalizes. Deterministic, dependency-free, good enough for
// similarity ranking when no embedding provider is configured.
type localVectorizer struct {
	log *logger.Logger
	dim int
}

func NewLocal(log *logger.Logger, dim int) (Vectorizer, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	return &localVectorizer{
		log: log.With("service", "LocalVectorizer"),
		dim: dim,
	}, nil
}

func (v *localVectorizer) Dimension() int {
	return v.dim
}

func (v *localVectorizer) Embed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, v.dim)
	for _, raw := range strings.Fields(text) {
		token := textutil.StripNonAlnum(raw)
		if token == "" || textutil.Stopwords[token] {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		idx := int(h.Sum32()) % v.dim
		if idx < 0 {
			idx += v.dim
		}
		// sign hash decorrelates buckets that collide
		sign := float32(1)
		if h.Sum32()&1 == 1 {
			sign = -1
		}
		out[idx] += sign
	}
	var norm float64
	for _, val := range out {
		norm += float64(val) * float64(val)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range out {
			out[i] *= scale
		}
	}
	return out, nil
}
