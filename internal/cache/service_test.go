package cache

import (
	"context"
	"testing"
	"time"

	"cvpolish-core/internal/backend"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewFileBlobStore(t.TempDir()))
}

func sampleAnalysis(resumeID string) backend.AnalysisResult {
	return backend.AnalysisResult{
		ResumeID:     resumeID,
		OverallScore: 72,
		Sections: []backend.SectionAnalysis{
			{Name: "experience", Content: "5 years of Go", Score: 70, Suggestions: []string{"quantify impact"}},
		},
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	s.CacheAnalysisResult(ctx, "r1", sampleAnalysis("r1"), "pdf text content")

	got, ok := s.CachedAnalysisResult(ctx, "r1", "pdf text content")
	if !ok {
		t.Fatalf("expected analysis hit")
	}
	if got.OverallScore != 72 {
		t.Fatalf("unexpected cached analysis: %+v", got)
	}

	// Different PDF content for the same resume must miss.
	if _, ok := s.CachedAnalysisResult(ctx, "r1", "pdf text content v2"); ok {
		t.Fatalf("changed content must be a cache miss")
	}
}

func TestAnalysisWriteThroughPromotion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileBlobStore(dir)

	// Seed the durable tier directly, simulating a prior session.
	durable := NewPersistent[backend.AnalysisResult](store, analysisStoreName)
	key := AnalysisKey("r1", "pdf text")
	durable.Set(ctx, key, sampleAnalysis("r1"), AnalysisTTL)

	s := NewService(store)

	// First read: served from durable, promoted into memory.
	got, ok := s.CachedAnalysisResult(ctx, "r1", "pdf text")
	if !ok || got.ResumeID != "r1" {
		t.Fatalf("expected durable hit, got ok=%v %+v", ok, got)
	}

	// Kill the durable tier; the promoted copy must still serve reads.
	durable.Clear(ctx)
	got, ok = s.CachedAnalysisResult(ctx, "r1", "pdf text")
	if !ok || got.ResumeID != "r1" {
		t.Fatalf("expected promoted in-memory hit after durable clear, got ok=%v", ok)
	}
}

func TestSectionEditContentAddressing(t *testing.T) {
	s := newTestService(t)

	result := backend.SectionEditResult{UpdatedSection: "Led a team of 4", UpdatedScore: 85}
	suggestions := []string{"mention leadership"}

	s.CacheSectionEditResult("r1", "experience", "contentA", suggestions, result)

	if got, ok := s.CachedSectionEditResult("r1", "experience", "contentA", suggestions); !ok || got.UpdatedScore != 85 {
		t.Fatalf("expected hit for identical inputs, ok=%v", ok)
	}
	// Round-trip only succeeds for identical inputs.
	if _, ok := s.CachedSectionEditResult("r1", "experience", "contentB", suggestions); ok {
		t.Fatalf("changed content must miss")
	}
	if _, ok := s.CachedSectionEditResult("r1", "experience", "contentA", []string{"different"}); ok {
		t.Fatalf("changed suggestions must miss")
	}
}

func TestChatSnapshotLastWriteWins(t *testing.T) {
	s := newTestService(t)

	first := []backend.ChatMessage{{Role: backend.RoleUser, Content: "hi"}}
	second := append(first, backend.ChatMessage{Role: backend.RoleAssistant, Content: "hello"})

	s.CacheChatConversation("r1", "summary", first, "ctx1")
	s.CacheChatConversation("r1", "summary", second, "ctx2")

	snap, ok := s.CachedChatConversation("r1", "summary")
	if !ok {
		t.Fatalf("expected chat hit")
	}
	if len(snap.Messages) != 2 || snap.Context != "ctx2" {
		t.Fatalf("expected latest snapshot to win, got %+v", snap)
	}
}

func TestChatSnapshotIsCopied(t *testing.T) {
	s := newTestService(t)

	messages := []backend.ChatMessage{{Role: backend.RoleUser, Content: "original"}}
	s.CacheChatConversation("r1", "summary", messages, "")

	// Mutating the caller's slice must not reach into the cache.
	messages[0].Content = "mutated"

	snap, _ := s.CachedChatConversation("r1", "summary")
	if snap.Messages[0].Content != "original" {
		t.Fatalf("cache holds a reference to the caller's slice")
	}
}

func TestPDFGenerationDurableOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	updates := []backend.SectionUpdate{{SectionName: "experience", Content: "rewritten"}}
	s.CachePDFGeneration(ctx, "r1", backend.PDFResult{PDFURL: "https://cdn/x.pdf"}, updates)

	got, ok := s.CachedPDFGeneration(ctx, "r1", updates)
	if !ok || got.PDFURL != "https://cdn/x.pdf" {
		t.Fatalf("expected pdf hit, ok=%v got=%+v", ok, got)
	}

	// A different update list is a different generation.
	other := []backend.SectionUpdate{{SectionName: "experience", Content: "other"}}
	if _, ok := s.CachedPDFGeneration(ctx, "r1", other); ok {
		t.Fatalf("different updates must miss")
	}
}

func TestSweepExpiredIdempotent(t *testing.T) {
	s := newTestService(t)

	s.CacheChatConversation("r1", "a", []backend.ChatMessage{{Role: backend.RoleUser, Content: "x"}}, "")
	s.CacheSectionEditResult("r1", "b", "c", nil, backend.SectionEditResult{UpdatedSection: "y"})

	s.SweepExpired()
	first := s.Stats()
	s.SweepExpired()
	second := s.Stats()

	if first != second {
		t.Fatalf("second sweep changed counts: %+v vs %+v", first, second)
	}
	if first.Chat != 1 || first.Section != 1 {
		t.Fatalf("unexpected live counts: %+v", first)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	s.CacheAnalysisResult(ctx, "r1", sampleAnalysis("r1"), "pdf")
	s.CacheChatConversation("r1", "summary", []backend.ChatMessage{{Role: backend.RoleUser, Content: "x"}}, "")

	s.ClearAll(ctx)

	if st := s.Stats(); st.Analysis != 0 || st.Chat != 0 || st.Section != 0 {
		t.Fatalf("expected empty stats after ClearAll, got %+v", st)
	}
	if _, ok := s.CachedAnalysisResult(ctx, "r1", "pdf"); ok {
		t.Fatalf("durable analysis survived ClearAll")
	}
}

func TestAnalysisTTLExpiryBothTiers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileBlobStore(dir)

	// Short-lived entry written straight to both tiers.
	s := NewService(store)
	key := AnalysisKey("r1", "pdf")
	s.analysisMem.Set(key, sampleAnalysis("r1"), 15*time.Millisecond)
	s.analysisDur.Set(ctx, key, sampleAnalysis("r1"), 15*time.Millisecond)

	time.Sleep(25 * time.Millisecond)

	if _, ok := s.CachedAnalysisResult(ctx, "r1", "pdf"); ok {
		t.Fatalf("expected miss after TTL elapsed in both tiers")
	}
}
