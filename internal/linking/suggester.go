package linking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/types"
)

// Suggester proposes graph edges from a capsule to its closest neighbors
// using keyword and tag overlap. Everything here is lexical; no embeddings.
type Suggester interface {
	SuggestLinks(ctx context.Context, source types.Capsule, topK int) ([]types.CapsuleLink, error)
}

type suggester struct {
	store store.Store
	log   *logger.Logger
}

func NewSuggester(s store.Store, baseLog *logger.Logger) Suggester {
	return &suggester{
		store: s,
		log:   baseLog.With("service", "LinkSuggester"),
	}
}

func (s *suggester) SuggestLinks(ctx context.Context, source types.Capsule, topK int) ([]types.CapsuleLink, error) {
	neighbors, err := s.store.ListCapsules(ctx, nil)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		capsule types.Capsule
		score   float64
		rel     string
	}
	scored := make([]candidate, 0, len(neighbors))
	for _, neighbor := range neighbors {
		if neighbor.Metadata.CapsuleID == source.Metadata.CapsuleID {
			continue
		}
		scored = append(scored, candidate{
			capsule: neighbor,
			score:   similarity(source, neighbor),
			rel:     determineRelation(source, neighbor),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > topK {
		scored = scored[:topK]
	}

	links := make([]types.CapsuleLink, 0, len(scored))
	for _, c := range scored {
		links = append(links, types.CapsuleLink{
			Rel:             c.rel,
			TargetCapsuleID: c.capsule.Metadata.CapsuleID,
			Reason:          reason(source, c.capsule, c.rel),
			Confidence:      clamp(c.score, 0.60, 0.95),
		})
	}
	return links, nil
}

// similarity blends keyword Jaccard (0.6) with tag Jaccard (0.4); identical
// semantic hashes short-circuit to a perfect score.
func similarity(source, target types.Capsule) float64 {
	if source.Metadata.SemanticHash == target.Metadata.SemanticHash {
		return 1.0
	}
	kw := jaccard(lowerSet(source.NeuroConcentrate.Keywords), lowerSet(target.NeuroConcentrate.Keywords))
	tags := jaccard(lowerSet(source.Metadata.Tags), lowerSet(target.Metadata.Tags))
	return kw*0.6 + tags*0.4
}

func determineRelation(source, target types.Capsule) string {
	if source.Metadata.SemanticHash == target.Metadata.SemanticHash {
		return types.LinkRelDuplicates
	}
	for _, claim := range source.NeuroConcentrate.Claims {
		if strings.Contains(strings.ToLower(claim), "extend") {
			return types.LinkRelExtends
		}
	}
	for _, claim := range source.NeuroConcentrate.Claims {
		lower := strings.ToLower(claim)
		if strings.Contains(lower, "depend") || strings.Contains(lower, "require") {
			return types.LinkRelDependsOn
		}
	}
	return types.LinkRelReferences
}

func reason(source, target types.Capsule, rel string) string {
	switch rel {
	case types.LinkRelDuplicates:
		return fmt.Sprintf("Shares semantic_hash: %s...", truncate(source.Metadata.SemanticHash, 30))
	case types.LinkRelReferences:
		shared := sharedTags(source.Metadata.Tags, target.Metadata.Tags)
		if len(shared) > 2 {
			shared = shared[:2]
		}
		return fmt.Sprintf("References related concepts; shared tags: %s", strings.Join(shared, ", "))
	case types.LinkRelExtends:
		return fmt.Sprintf("Extends %s with additional details", firstTag(target))
	default:
		return fmt.Sprintf("Related to %s", firstTag(target))
	}
}

func firstTag(capsule types.Capsule) string {
	if len(capsule.Metadata.Tags) > 0 {
		return capsule.Metadata.Tags[0]
	}
	return "capsule"
}

func sharedTags(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, tag := range b {
		set[tag] = true
	}
	var out []string
	for _, tag := range a {
		if set[tag] {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

func lowerSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[strings.ToLower(v)] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union < 1 {
		union = 1
	}
	return float64(inter) / float64(union)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
