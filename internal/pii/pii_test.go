package pii

import (
	"strings"
	"testing"

	"github.com/n1hub/deepmine-engine/internal/types"
)

func TestRedact_ReplacesEmailAndPhone(t *testing.T) {
	got := Redact("reach jane.doe@example.com or +1 555-0100-1234")
	if strings.Contains(got, "example.com") {
		t.Fatalf("email survived redaction: %q", got)
	}
	if !strings.Contains(got, "[REDACTED:EMAIL]") {
		t.Fatalf("missing email placeholder: %q", got)
	}
	if !strings.Contains(got, "[REDACTED:PHONE]") {
		t.Fatalf("missing phone placeholder: %q", got)
	}
}

func TestRedact_SSN(t *testing.T) {
	got := Redact("ssn 123-45-6789 on file")
	if strings.Contains(got, "123-45-6789") {
		t.Fatalf("ssn survived redaction: %q", got)
	}
}

func TestRedact_LeavesCleanTextAlone(t *testing.T) {
	clean := "chunk size and stride tune the retriever"
	if got := Redact(clean); got != clean {
		t.Fatalf("clean text was altered: %q", got)
	}
}

func TestScanTokens_ReportsWholeToken(t *testing.T) {
	hits := ScanTokens([]string{"mail me at jane@example.com please", "clean-tag"})
	if len(hits) != 1 {
		t.Fatalf("expected exactly one hit, got %v", hits)
	}
	if hits[0] != "email:mail me at jane@example.com please" {
		t.Fatalf("hit must carry the whole token, got %q", hits[0])
	}
}

func TestScanCapsule_FlagsTagAndContentHits(t *testing.T) {
	capsule := types.Capsule{}
	capsule.Metadata.Tags = []string{"retrieval", "jane@example.com"}
	capsule.CorePayload.Content = "call 555-0100-12345 for details"

	hits := ScanCapsule(capsule)
	if len(hits) < 2 {
		t.Fatalf("expected tag and content hits, got %v", hits)
	}
	foundCore := false
	for _, hit := range hits {
		if strings.HasPrefix(hit, "core:") {
			foundCore = true
		}
	}
	if !foundCore {
		t.Fatalf("expected a core: hit, got %v", hits)
	}
}

func TestScanCapsule_CleanCapsuleHasNoHits(t *testing.T) {
	capsule := types.Capsule{}
	capsule.Metadata.Tags = []string{"retrieval", "graph", "capsule"}
	capsule.NeuroConcentrate.Summary = "A clean summary about retrieval defaults."
	capsule.CorePayload.Content = "Nothing personal in here."
	if hits := ScanCapsule(capsule); len(hits) != 0 {
		t.Fatalf("expected no hits, got %v", hits)
	}
}

func TestContainsPII(t *testing.T) {
	if !ContainsPII([]string{"ok", "bob@example.org"}) {
		t.Fatalf("expected PII detection for email tag")
	}
	if ContainsPII([]string{"retrieval", "graph"}) {
		t.Fatalf("false positive on clean tags")
	}
}
