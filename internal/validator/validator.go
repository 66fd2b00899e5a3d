package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/n1hub/deepmine-engine/internal/taxonomy"
	"github.com/n1hub/deepmine-engine/internal/textutil"
	"github.com/n1hub/deepmine-engine/internal/types"
)

var (
	bcp47Pattern    = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)
	lowercaseWordRe = regexp.MustCompile(`\b[a-z]{4,}\b`)
)

// Result collects everything one validation pass produced. Valid is true only
// when zero errors were recorded, even if a repair was applied.
type Result struct {
	Valid    bool
	Capsule  types.Capsule
	Errors   []types.JobErrorIssue
	Warnings []types.JobErrorIssue
	// Classified carries the taxonomy view of every error and warning, in
	// the same order they were recorded.
	Classified []taxonomy.CapsuleError
	Fixes      []string
}

// Validate runs the 13-point checklist against a capsule. It never mutates the
// input; repairs (when strict is false) land on the returned copy. Running it
// again on a capsule that already passes is a no-op.
func Validate(capsule types.Capsule, strict bool) Result {
	out := capsule.Clone()
	res := Result{}

	// 1: ULID format
	if out.Metadata.CapsuleID != "PENDING" && len(out.Metadata.CapsuleID) != 26 {
		res.addError(taxonomy.CodeBadULIDLength, "/metadata/capsule_id", fmt.Sprintf("ULID length %d != 26", len(out.Metadata.CapsuleID)))
	}

	// 2: summary length 70-140 words
	summaryWords := textutil.WordCount(out.NeuroConcentrate.Summary)
	if summaryWords < 70 {
		res.addError(taxonomy.CodeSummaryLengthViolation, "/neuro_concentrate/summary", fmt.Sprintf("Summary has %d words; must be 70-140", summaryWords))
		if !strict {
			expandSummary(&out, &res)
		}
	} else if summaryWords > 140 {
		res.addError(taxonomy.CodeSummaryLengthViolation, "/neuro_concentrate/summary", fmt.Sprintf("Summary has %d words; exceeds maximum 140", summaryWords))
		if !strict {
			words := strings.Fields(out.NeuroConcentrate.Summary)
			out.NeuroConcentrate.Summary = strings.Join(words[:140], " ")
			res.Fixes = append(res.Fixes, "summary trimmed to 140 words")
		}
	}

	// 3: keywords 5-12
	kwCount := len(out.NeuroConcentrate.Keywords)
	if kwCount < 5 {
		res.addError(taxonomy.CodeKeywordCountViolation, "/neuro_concentrate/keywords", fmt.Sprintf("Only %d keywords; need 5-12", kwCount))
		if !strict {
			expandKeywords(&out, &res)
		}
	} else if kwCount > 12 {
		res.addWarning(taxonomy.CodeKeywordCountViolation, "/neuro_concentrate/keywords", fmt.Sprintf("%d keywords; maximum is 12", kwCount))
		if !strict {
			out.NeuroConcentrate.Keywords = out.NeuroConcentrate.Keywords[:12]
			res.Fixes = append(res.Fixes, "keywords trimmed to 12")
		}
	}

	// 4: vector_hint 8-16
	hintCount := len(out.NeuroConcentrate.VectorHint)
	if hintCount < 8 {
		res.addError(taxonomy.CodeVectorHintCountViolation, "/neuro_concentrate/vector_hint", fmt.Sprintf("Only %d vector hints; need 8-16", hintCount))
		if !strict {
			for len(out.NeuroConcentrate.VectorHint) < 8 {
				out.NeuroConcentrate.VectorHint = append(
					out.NeuroConcentrate.VectorHint,
					fmt.Sprintf("anchor-%d", len(out.NeuroConcentrate.VectorHint)+1),
				)
			}
			res.Fixes = append(res.Fixes, "vector_hint expanded to 8")
		}
	} else if hintCount > 16 {
		res.addWarning(taxonomy.CodeVectorHintCountViolation, "/neuro_concentrate/vector_hint", fmt.Sprintf("%d vector hints; maximum is 16", hintCount))
		if !strict {
			out.NeuroConcentrate.VectorHint = out.NeuroConcentrate.VectorHint[:16]
			res.Fixes = append(res.Fixes, "vector_hint trimmed to 16")
		}
	}

	// 5: tags 3-10, warning only
	tagCount := len(out.Metadata.Tags)
	if tagCount < 3 {
		res.addWarning(taxonomy.CodeMissingTags, "/metadata/tags", fmt.Sprintf("Only %d tags; optimal is 3-10", tagCount))
	} else if tagCount > 10 {
		res.addWarning(taxonomy.CodeContentExceedsBudget, "/metadata/tags", fmt.Sprintf("%d tags; maximum is 10", tagCount))
	}

	// 6: hash mirror
	if out.Metadata.SemanticHash != out.NeuroConcentrate.SemanticHash {
		res.addError(taxonomy.CodeSemanticHashMismatch, "/metadata/semantic_hash", fmt.Sprintf(
			"Hash mismatch: metadata='%s...' != neuro='%s...'",
			truncate(out.Metadata.SemanticHash, 20),
			truncate(out.NeuroConcentrate.SemanticHash, 20),
		))
		if !strict {
			hash := textutil.ComputeSemanticHash(out.NeuroConcentrate.Summary)
			out.Metadata.SemanticHash = hash
			out.NeuroConcentrate.SemanticHash = hash
			res.Fixes = append(res.Fixes, "semantic_hash recomputed and mirrored")
		}
	}

	// 7: emotional_charge in [-1, 1]
	charge := out.NeuroConcentrate.EmotionalCharge
	if charge < -1.0 || charge > 1.0 {
		res.addError(taxonomy.CodeEmotionalChargeOutOfRange, "/neuro_concentrate/emotional_charge", fmt.Sprintf("Value %g out of range [-1, 1]", charge))
		if !strict {
			out.NeuroConcentrate.EmotionalCharge = clamp(charge, -1.0, 1.0)
			res.Fixes = append(res.Fixes, "emotional_charge clamped to [-1, 1]")
		}
	}

	// 8: link relation vocabulary
	for i, link := range out.Recursive.Links {
		if !types.AllowedLinkRels[link.Rel] {
			res.addError(taxonomy.CodeLinkRelInvalid, fmt.Sprintf("/recursive/links[%d]/rel", i), fmt.Sprintf("Invalid relation: '%s'", link.Rel))
		}
	}

	// 9: link confidence in [0, 1]
	for i := range out.Recursive.Links {
		conf := out.Recursive.Links[i].Confidence
		if conf < 0.0 || conf > 1.0 {
			res.addError(taxonomy.CodeLinkConfidenceOutOfRange, fmt.Sprintf("/recursive/links[%d]/confidence", i), fmt.Sprintf("Value %g out of range [0, 1]", conf))
			if !strict {
				out.Recursive.Links[i].Confidence = clamp(conf, 0.0, 1.0)
				res.Fixes = append(res.Fixes, fmt.Sprintf("link[%d] confidence clamped", i))
			}
		}
	}

	// 10: archetypes <=5, warning
	if len(out.NeuroConcentrate.Archetypes) > 5 {
		res.addWarning(taxonomy.CodeArchetypesCountViolation, "/neuro_concentrate/archetypes", fmt.Sprintf("%d archetypes; maximum is 5", len(out.NeuroConcentrate.Archetypes)))
		if !strict {
			out.NeuroConcentrate.Archetypes = out.NeuroConcentrate.Archetypes[:5]
			res.Fixes = append(res.Fixes, "archetypes trimmed to 5")
		}
	}

	// 11: created_at must be a real timestamp
	if out.Metadata.CreatedAt.IsZero() {
		res.addError(taxonomy.CodeTimestampInvalid, "/metadata/created_at", "Invalid timestamp format")
	}

	// 12: BCP-47-ish language tag, warning
	if !bcp47Pattern.MatchString(out.Metadata.Language) {
		res.addWarning(taxonomy.CodeBadBCP47, "/metadata/language", fmt.Sprintf("Language code '%s' may not be valid BCP-47", out.Metadata.Language))
	}

	// 13: section presence is enforced by the Capsule struct itself.

	res.Valid = len(res.Errors) == 0
	res.Capsule = out
	return res
}

func expandSummary(capsule *types.Capsule, res *Result) {
	current := strings.Fields(capsule.NeuroConcentrate.Summary)
	if len(current) >= 70 {
		return
	}
	contentWords := strings.Fields(capsule.CorePayload.Content)
	if len(contentWords) > 30 {
		contentWords = contentWords[:30]
	}
	capsule.NeuroConcentrate.Summary = strings.Join(append(current, contentWords...), " ")
	if textutil.WordCount(capsule.NeuroConcentrate.Summary) < 70 {
		capsule.NeuroConcentrate.Summary += " This capsule documents structured knowledge for retrieval and graph traversal."
	}
	res.Fixes = append(res.Fixes, "summary expanded to meet minimum word count")
}

func expandKeywords(capsule *types.Capsule, res *Result) {
	existing := make(map[string]bool, len(capsule.NeuroConcentrate.Keywords))
	for _, kw := range capsule.NeuroConcentrate.Keywords {
		existing[strings.ToLower(kw)] = true
	}
	mined := lowercaseWordRe.FindAllString(strings.ToLower(capsule.CorePayload.Content), -1)
	added := 0
	for _, word := range mined {
		if existing[word] {
			continue
		}
		capsule.NeuroConcentrate.Keywords = append(capsule.NeuroConcentrate.Keywords, word)
		existing[word] = true
		added++
		if added == 12 {
			break
		}
	}
	fallback := []string{"knowledge", "graph", "retrieval", "deepmine", "n1hub", "capsules"}
	for _, word := range fallback {
		if len(capsule.NeuroConcentrate.Keywords) >= 5 {
			break
		}
		if existing[word] {
			continue
		}
		capsule.NeuroConcentrate.Keywords = append(capsule.NeuroConcentrate.Keywords, word)
		existing[word] = true
	}
	if len(capsule.NeuroConcentrate.Keywords) > 12 {
		capsule.NeuroConcentrate.Keywords = capsule.NeuroConcentrate.Keywords[:12]
	}
	res.Fixes = append(res.Fixes, "keywords expanded from content")
}

func (r *Result) addError(code taxonomy.Code, path, message string) {
	r.Errors = append(r.Errors, types.JobErrorIssue{Path: path, Message: message})
	r.Classified = append(r.Classified,
		taxonomy.Build(code, path, message, taxonomy.RecoveryStrategy(code), taxonomy.SeverityError))
}

func (r *Result) addWarning(code taxonomy.Code, path, message string) {
	r.Warnings = append(r.Warnings, types.JobErrorIssue{Path: path, Message: message})
	r.Classified = append(r.Classified,
		taxonomy.Build(code, path, message, taxonomy.RecoveryStrategy(code), taxonomy.SeverityWarning))
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
