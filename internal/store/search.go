package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n1hub/deepmine-engine/internal/pii"
	"github.com/n1hub/deepmine-engine/internal/types"
)

// lexicalRank scores capsules by query-token occurrence over summary,
// keywords and content, boosts RAG-eligible capsules, and keeps only
// positive scores. Shared by both backends so scoring stays identical.
func lexicalRank(capsules []types.Capsule, query string, scopeTags []string, topK int) []types.Capsule {
	scope := make(map[string]bool, len(scopeTags))
	for _, tag := range scopeTags {
		scope[strings.ToLower(tag)] = true
	}
	type scored struct {
		score   int
		capsule types.Capsule
	}
	ranked := make([]scored, 0, len(capsules))
	for _, capsule := range capsules {
		if len(scope) > 0 && !tagsIntersect(scope, capsule.Metadata.Tags) {
			continue
		}
		text := strings.ToLower(strings.Join([]string{
			capsule.NeuroConcentrate.Summary,
			strings.Join(capsule.NeuroConcentrate.Keywords, " "),
			capsule.CorePayload.Content,
		}, " "))
		score := 0
		for _, token := range strings.Fields(strings.ToLower(query)) {
			score += strings.Count(text, token)
		}
		if capsule.IncludeInRAG {
			score += 2
		} else {
			score--
		}
		ranked = append(ranked, scored{score: score, capsule: capsule})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].capsule.Metadata.CapsuleID < ranked[j].capsule.Metadata.CapsuleID
	})
	out := make([]types.Capsule, 0, topK)
	for _, entry := range ranked {
		if len(out) >= topK {
			break
		}
		if entry.score <= 0 {
			continue
		}
		out = append(out, entry.capsule)
	}
	return out
}

func tagsIntersect(scope map[string]bool, tags []string) bool {
	for _, tag := range tags {
		if scope[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}

// normalizeTags validates and normalizes a tag update: 3-10 items, lowercase,
// no PII.
func normalizeTags(tags []string) ([]string, error) {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			normalized = append(normalized, tag)
		}
	}
	if len(normalized) < 3 || len(normalized) > 10 {
		return nil, fmt.Errorf("tags must be 3-10 items, got %d", len(normalized))
	}
	if pii.ContainsPII(normalized) {
		return nil, fmt.Errorf("tags contain PII - remove personal identifiers before updating")
	}
	return normalized, nil
}
