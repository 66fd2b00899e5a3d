package pii

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/n1hub/deepmine-engine/internal/types"
)

type pattern struct {
	label string
	re    *regexp.Regexp
}

// Pattern order is fixed so redaction output stays deterministic.
var patterns = []pattern{
	{"email", regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)},
	{"phone", regexp.MustCompile(`\+?[0-9][0-9 \-]{7,}[0-9]`)},
	{"ssn", regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)},
	{"tax_id", regexp.MustCompile(`\b[0-9]{2}-[0-9]{7}\b`)},
	{"id_number", regexp.MustCompile(`(?i)\b[A-Z]{1,3}[0-9]{6,10}\b`)},
}

// Redact replaces matched PII tokens with deterministic placeholders.
func Redact(text string) string {
	for _, p := range patterns {
		text = p.re.ReplaceAllString(text, fmt.Sprintf("[REDACTED:%s]", strings.ToUpper(p.label)))
	}
	return text
}

// Hit describes one PII match: "label:token" or "field:label".
type Hit = string

func findLabels(text string) []string {
	var labels []string
	for _, p := range patterns {
		for range p.re.FindAllString(text, -1) {
			labels = append(labels, p.label)
		}
	}
	return labels
}

// ScanTokens reports hits in a list of short metadata strings. Each hit names
// the whole token that matched, not just the matching substring.
func ScanTokens(tokens []string) []Hit {
	var hits []Hit
	for _, token := range tokens {
		for _, label := range findLabels(token) {
			hits = append(hits, label+":"+token)
		}
	}
	return hits
}

// ScanCapsule scans the capsule's tags, keywords, vector hints, summary and
// content for PII. Any hit is a hard failure for the assembly guardrail.
func ScanCapsule(capsule types.Capsule) []Hit {
	var hits []Hit
	hits = append(hits, ScanTokens(capsule.Metadata.Tags)...)
	hits = append(hits, ScanTokens(capsule.NeuroConcentrate.Keywords)...)
	hits = append(hits, ScanTokens(capsule.NeuroConcentrate.VectorHint)...)
	for _, label := range findLabels(capsule.NeuroConcentrate.Summary) {
		hits = append(hits, "summary:"+label)
	}
	for _, label := range findLabels(capsule.CorePayload.Content) {
		hits = append(hits, "core:"+label)
	}
	return hits
}

// ContainsPII reports whether any metadata field value matches a PII pattern.
func ContainsPII(values []string) bool {
	for _, v := range values {
		if len(findLabels(v)) > 0 {
			return true
		}
	}
	return false
}
