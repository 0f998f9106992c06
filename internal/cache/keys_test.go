package cache

import (
	"strings"
	"testing"

	"cvpolish-core/internal/backend"
)

func TestAnalysisKeyShape(t *testing.T) {
	key := AnalysisKey("resume-1", "some pdf text")
	if !strings.HasPrefix(key, "resume-1_") {
		t.Fatalf("key must start with resume id: %q", key)
	}
	if key == AnalysisKey("resume-1", "other pdf text") {
		t.Fatalf("different content produced identical key")
	}
	if key != AnalysisKey("resume-1", "some pdf text") {
		t.Fatalf("key is not deterministic")
	}
}

func TestSectionEditKeySensitivity(t *testing.T) {
	base := SectionEditKey("r", "experience", "content", []string{"s1", "s2"})

	if base != SectionEditKey("r", "experience", "content", []string{"s1", "s2"}) {
		t.Fatalf("key is not deterministic")
	}
	if base == SectionEditKey("r", "experience", "content!", []string{"s1", "s2"}) {
		t.Fatalf("content change did not change key")
	}
	if base == SectionEditKey("r", "experience", "content", []string{"s1"}) {
		t.Fatalf("suggestion change did not change key")
	}
	if base == SectionEditKey("r", "summary", "content", []string{"s1", "s2"}) {
		t.Fatalf("section change did not change key")
	}
}

func TestPDFKeyTracksUpdates(t *testing.T) {
	a := []backend.SectionUpdate{{SectionName: "experience", Content: "v1"}}
	b := []backend.SectionUpdate{{SectionName: "experience", Content: "v2"}}

	if PDFKey("r", a) == PDFKey("r", b) {
		t.Fatalf("different updates produced identical key")
	}
	if PDFKey("r", a) != PDFKey("r", a) {
		t.Fatalf("key is not deterministic")
	}
}
