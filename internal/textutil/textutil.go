package textutil

import (
	"fmt"
	"regexp"
	"strings"
)

// Stopwords is the fixed stopword set shared by keyword extraction and the
// semantic hash.
var Stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"to": true, "for": true, "with": true, "in": true, "on": true, "by": true,
	"from": true, "as": true, "is": true, "are": true, "be": true, "this": true,
	"that": true, "these": true, "those": true, "it": true, "its": true,
	"at": true, "into": true, "via": true,
}

var (
	nonAlnumRuns  = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// CollapseWhitespace trims and collapses all whitespace runs to single spaces.
func CollapseWhitespace(text string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(text), " ")
}

// ComputeSemanticHash digests a summary into its first 8 distinct qualifying
// tokens (lowercased, non-alphanumeric-split, stopwords and <3-char tokens
// dropped), padded with z1, z2, ... and joined with "-". Deterministic and
// order-sensitive; not a hash of the full content.
func ComputeSemanticHash(summary string) string {
	splits := nonAlnumRuns.Split(strings.ToLower(summary), -1)
	seen := make([]string, 0, 8)
	for _, token := range splits {
		if token == "" || Stopwords[token] || len(token) < 3 {
			continue
		}
		if !contains(seen, token) {
			seen = append(seen, token)
		}
		if len(seen) == 8 {
			break
		}
	}
	for len(seen) < 8 {
		seen = append(seen, fmt.Sprintf("z%d", len(seen)+1))
	}
	return strings.Join(seen, "-")
}

// SplitSentences splits normalized text on ., ! and ? boundaries followed by a space.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && runes[i+1] == ' ' {
				out = append(out, string(runes[start:i+1]))
				i++
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// StripNonAlnum lowercases a token and removes every non-alphanumeric rune.
func StripNonAlnum(token string) string {
	return nonAlnumRuns.ReplaceAllString(strings.ToLower(token), "")
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
