package cache

import (
	"context"
	"time"

	"cvpolish-core/internal/backend"
	"cvpolish-core/internal/metrics"
	"cvpolish-core/pkg/logging/logging"

	"go.uber.org/zap"
)

// Per-domain TTLs. Analysis is the most expensive call and the most
// stable result; chat context goes stale quickest.
const (
	AnalysisTTL    = 30 * time.Minute
	ChatTTL        = 10 * time.Minute
	SectionEditTTL = 15 * time.Minute
	PDFTTL         = 60 * time.Minute

	// SweepInterval is how often main triggers SweepExpired.
	SweepInterval = 5 * time.Minute
)

// Durable store blob names.
const (
	analysisStoreName = "cv_cache_analysis"
	pdfStoreName      = "cv_cache_pdf"
)

// ChatSnapshot is the cached state of one section conversation: the
// full message sequence plus its context, replaced wholesale on every
// write (last-write-wins, not append-only).
type ChatSnapshot struct {
	Messages []backend.ChatMessage `json:"messages"`
	Context  string                `json:"context"`
}

// Stats reports live entry counts for observability and tests.
type Stats struct {
	Analysis int `json:"analysis"`
	Chat     int `json:"chat"`
	Section  int `json:"section"`
}

// Service is the typed cache façade the HTTP layer talks to. It is the
// sole path between UI actions and the hosted CV service's expensive
// calls: analysis results ride a two-tier memory+durable path, chat and
// section edits are memory-only, generated PDFs are durable-only.
type Service struct {
	analysisMem *Memory[backend.AnalysisResult]
	analysisDur *Persistent[backend.AnalysisResult]
	chatMem     *Memory[ChatSnapshot]
	sectionMem  *Memory[backend.SectionEditResult]
	pdfDur      *Persistent[backend.PDFResult]
}

// NewService wires the domain stores over the given durable blob store.
func NewService(store BlobStore) *Service {
	return &Service{
		analysisMem: NewMemory[backend.AnalysisResult](50),
		analysisDur: NewPersistent[backend.AnalysisResult](store, analysisStoreName),
		chatMem:     NewMemory[ChatSnapshot](100),
		sectionMem:  NewMemory[backend.SectionEditResult](100),
		pdfDur:      NewPersistent[backend.PDFResult](store, pdfStoreName),
	}
}

// CacheAnalysisResult stores an analysis in both tiers.
func (s *Service) CacheAnalysisResult(ctx context.Context, resumeID string, result backend.AnalysisResult, pdfContent string) {
	key := AnalysisKey(resumeID, pdfContent)
	s.analysisMem.Set(key, result, AnalysisTTL)
	s.analysisDur.Set(ctx, key, result, AnalysisTTL)
}

// CachedAnalysisResult checks memory first, then the durable tier. A
// durable hit is promoted into memory with its remaining TTL before
// returning, so subsequent reads inside the TTL hit the fast tier.
func (s *Service) CachedAnalysisResult(ctx context.Context, resumeID, pdfContent string) (backend.AnalysisResult, bool) {
	key := AnalysisKey(resumeID, pdfContent)

	if result, ok := s.analysisMem.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("analysis", "memory").Inc()
		return result, true
	}

	result, remaining, ok := s.analysisDur.Get(ctx, key)
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues("analysis").Inc()
		return backend.AnalysisResult{}, false
	}

	// write-through promotion
	s.analysisMem.Set(key, result, remaining)
	metrics.CacheHitsTotal.WithLabelValues("analysis", "durable").Inc()
	logging.L(ctx).Debug("analysis promoted from durable tier",
		zap.String("resume_id", resumeID),
		zap.Duration("remaining_ttl", remaining),
	)
	return result, true
}

// CacheChatConversation overwrites the cached snapshot for the section.
func (s *Service) CacheChatConversation(resumeID, sectionName string, messages []backend.ChatMessage, convContext string) {
	snapshot := ChatSnapshot{
		Messages: append([]backend.ChatMessage(nil), messages...),
		Context:  convContext,
	}
	s.chatMem.Set(ChatKey(resumeID, sectionName), snapshot, ChatTTL)
}

// CachedChatConversation returns the last stored snapshot, if live.
func (s *Service) CachedChatConversation(resumeID, sectionName string) (ChatSnapshot, bool) {
	snapshot, ok := s.chatMem.Get(ChatKey(resumeID, sectionName))
	if ok {
		metrics.CacheHitsTotal.WithLabelValues("chat", "memory").Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues("chat").Inc()
	}
	return snapshot, ok
}

// CacheSectionEditResult stores an edit keyed by the content digest, so
// identical (content, suggestions) pairs never re-invoke the edit
// service within the TTL window.
func (s *Service) CacheSectionEditResult(resumeID, sectionName, originalContent string, suggestions []string, result backend.SectionEditResult) {
	s.sectionMem.Set(SectionEditKey(resumeID, sectionName, originalContent, suggestions), result, SectionEditTTL)
}

// CachedSectionEditResult returns the cached edit for exactly these
// inputs; any change to content or suggestions is a guaranteed miss.
func (s *Service) CachedSectionEditResult(resumeID, sectionName, originalContent string, suggestions []string) (backend.SectionEditResult, bool) {
	result, ok := s.sectionMem.Get(SectionEditKey(resumeID, sectionName, originalContent, suggestions))
	if ok {
		metrics.CacheHitsTotal.WithLabelValues("section", "memory").Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues("section").Inc()
	}
	return result, ok
}

// CachePDFGeneration stores a generated PDF location, durable only.
func (s *Service) CachePDFGeneration(ctx context.Context, resumeID string, result backend.PDFResult, updates []backend.SectionUpdate) {
	s.pdfDur.Set(ctx, PDFKey(resumeID, updates), result, PDFTTL)
}

// CachedPDFGeneration returns the PDF generated for exactly this update list.
func (s *Service) CachedPDFGeneration(ctx context.Context, resumeID string, updates []backend.SectionUpdate) (backend.PDFResult, bool) {
	result, _, ok := s.pdfDur.Get(ctx, PDFKey(resumeID, updates))
	if ok {
		metrics.CacheHitsTotal.WithLabelValues("pdf", "durable").Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues("pdf").Inc()
	}
	return result, ok
}

// ClearAll empties every store, memory and durable. Used on session teardown.
func (s *Service) ClearAll(ctx context.Context) {
	s.analysisMem.Clear()
	s.chatMem.Clear()
	s.sectionMem.Clear()
	s.analysisDur.Clear(ctx)
	s.pdfDur.Clear(ctx)
	logging.L(ctx).Info("all caches cleared")
}

// SweepExpired removes expired entries from the in-memory stores.
// Idempotent; invoked periodically from main and safe to call anytime.
func (s *Service) SweepExpired() {
	s.analysisMem.Cleanup()
	s.chatMem.Cleanup()
	s.sectionMem.Cleanup()
}

// Stats returns live in-memory entry counts.
func (s *Service) Stats() Stats {
	return Stats{
		Analysis: s.analysisMem.Len(),
		Chat:     s.chatMem.Len(),
		Section:  s.sectionMem.Len(),
	}
}
