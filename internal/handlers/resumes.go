package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cvpolish-core/internal/backend"
	"cvpolish-core/internal/cache"
	"cvpolish-core/pkg/logging/logging"
)

// ResumeHandler holds dependencies for the /v1/resumes endpoints. Every
// expensive call to the hosted CV service goes through the cache first.
type ResumeHandler struct {
	Backend   backend.Client
	Cache     *cache.Service
	Downloads *backend.Downloader
}

func NewResumeHandler(client backend.Client, cacheSvc *cache.Service, downloads *backend.Downloader) *ResumeHandler {
	return &ResumeHandler{
		Backend:   client,
		Cache:     cacheSvc,
		Downloads: downloads,
	}
}

// Upload handles POST /v1/resumes. Accepts a multipart "file" part and
// forwards it to the hosted service.
func (h *ResumeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("invalid upload", zap.Error(err))
		writeError(w, http.StatusBadRequest, "a multipart 'file' part is required")
		return
	}
	defer file.Close()

	sessionID := sessionFrom(r)

	result, err := h.Backend.UploadFile(ctx, file, header.Filename, sessionID)
	if err != nil {
		logger.Error("upload failed", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	if result.ResumeID == "" {
		// Some provider deployments omit the ID; mint one so the rest of
		// the flow stays keyable.
		result.ResumeID = uuid.NewString()
	}

	logger.Info("resume uploaded",
		zap.String("resume_id", result.ResumeID),
		zap.String("filename", header.Filename),
		zap.String("session_id", sessionID),
		zap.Duration("latency_ms", time.Since(start)),
	)
	writeJSON(w, http.StatusCreated, result)
}

type analyzeRequest struct {
	PDFContent string `json:"pdf_content"`
}

// Analyze handles POST /v1/resumes/{id}/analyze. The analysis is keyed
// by the PDF's content digest, so re-analyzing unchanged content is a
// pure cache read.
func (h *ResumeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	resumeID := chi.URLParam(r, "id")
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PDFContent == "" {
		writeError(w, http.StatusBadRequest, "pdf_content is required")
		return
	}

	if result, ok := h.Cache.CachedAnalysisResult(ctx, resumeID, req.PDFContent); ok {
		logger.Info("analysis served from cache",
			zap.String("resume_id", resumeID),
			zap.Duration("latency_ms", time.Since(start)),
		)
		writeJSON(w, http.StatusOK, result)
		return
	}

	result, err := h.Backend.Analyze(ctx, resumeID, sessionFrom(r))
	if err != nil {
		logger.Error("analysis failed", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}

	h.Cache.CacheAnalysisResult(ctx, resumeID, *result, req.PDFContent)

	logger.Info("analysis completed",
		zap.String("resume_id", resumeID),
		zap.Int("overall_score", result.OverallScore),
		zap.Int("sections", len(result.Sections)),
		zap.Duration("latency_ms", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, result)
}

type editSectionRequest struct {
	Content     string   `json:"content"`
	Suggestions []string `json:"suggestions"`
}

// EditSection handles POST /v1/resumes/{id}/sections/{section}/edit.
// Identical (content, suggestions) pairs within the TTL window resolve
// from cache without touching the provider.
func (h *ResumeHandler) EditSection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	resumeID := chi.URLParam(r, "id")
	sectionName := chi.URLParam(r, "section")

	var req editSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if result, ok := h.Cache.CachedSectionEditResult(resumeID, sectionName, req.Content, req.Suggestions); ok {
		logger.Info("section edit served from cache",
			zap.String("resume_id", resumeID),
			zap.String("section", sectionName),
			zap.Duration("latency_ms", time.Since(start)),
		)
		writeJSON(w, http.StatusOK, result)
		return
	}

	upstream := &backend.EditSectionRequest{
		ResumeID:    resumeID,
		SectionName: sectionName,
		Content:     req.Content,
		Suggestions: req.Suggestions,
		SessionID:   sessionFrom(r),
	}
	if err := upstream.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.Backend.EditSection(ctx, upstream)
	if err != nil {
		logger.Error("section edit failed",
			zap.String("section", sectionName),
			zap.Error(err),
		)
		writeUpstreamError(w, err)
		return
	}

	h.Cache.CacheSectionEditResult(resumeID, sectionName, req.Content, req.Suggestions, *result)

	logger.Info("section edited",
		zap.String("resume_id", resumeID),
		zap.String("section", sectionName),
		zap.Int("updated_score", result.UpdatedScore),
		zap.Duration("latency_ms", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, result)
}

type chatTurnRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

type chatTurnResponse struct {
	Reply            string                `json:"reply"`
	RequiresMoreInfo bool                  `json:"requires_more_info"`
	Messages         []backend.ChatMessage `json:"messages"`
}

// Chat handles POST /v1/resumes/{id}/sections/{section}/chat. The full
// conversation lives in the cache; each turn appends the user message,
// asks the provider, appends the reply and stores the new snapshot.
func (h *ResumeHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	resumeID := chi.URLParam(r, "id")
	sectionName := chi.URLParam(r, "section")

	var req chatTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	snapshot, _ := h.Cache.CachedChatConversation(resumeID, sectionName)
	convContext := snapshot.Context
	if req.Context != "" {
		convContext = req.Context
	}

	messages := append(snapshot.Messages, backend.ChatMessage{
		Role:    backend.RoleUser,
		Content: req.Message,
	})

	upstream := &backend.ChatRequest{
		ResumeID:    resumeID,
		SectionName: sectionName,
		Messages:    messages,
		SessionID:   sessionFrom(r),
	}
	if err := upstream.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.Backend.SendChatMessage(ctx, upstream)
	if err != nil {
		logger.Error("chat turn failed",
			zap.String("section", sectionName),
			zap.Error(err),
		)
		writeUpstreamError(w, err)
		return
	}

	messages = append(messages, backend.ChatMessage{
		Role:    backend.RoleAssistant,
		Content: reply.Message,
	})
	h.Cache.CacheChatConversation(resumeID, sectionName, messages, convContext)

	logger.Info("chat turn completed",
		zap.String("resume_id", resumeID),
		zap.String("section", sectionName),
		zap.Int("messages", len(messages)),
		zap.Duration("latency_ms", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, chatTurnResponse{
		Reply:            reply.Message,
		RequiresMoreInfo: reply.RequiresMoreInfo,
		Messages:         messages,
	})
}

// ChatHistory handles GET /v1/resumes/{id}/sections/{section}/chat.
func (h *ResumeHandler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	resumeID := chi.URLParam(r, "id")
	sectionName := chi.URLParam(r, "section")

	snapshot, ok := h.Cache.CachedChatConversation(resumeID, sectionName)
	if !ok {
		writeError(w, http.StatusNotFound, "no conversation for this section")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type generatePDFRequest struct {
	Updates []backend.SectionUpdate `json:"updates"`
}

// GeneratePDF handles POST /v1/resumes/{id}/pdf. The result is keyed by
// the exact update list; regenerating with the same accepted edits is a
// durable-cache read.
func (h *ResumeHandler) GeneratePDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	resumeID := chi.URLParam(r, "id")

	var req generatePDFRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if result, ok := h.Cache.CachedPDFGeneration(ctx, resumeID, req.Updates); ok {
		logger.Info("generated pdf served from cache",
			zap.String("resume_id", resumeID),
			zap.Duration("latency_ms", time.Since(start)),
		)
		writeJSON(w, http.StatusOK, result)
		return
	}

	result, err := h.Backend.GeneratePDF(ctx, resumeID, sessionFrom(r), req.Updates)
	if err != nil {
		logger.Error("pdf generation failed", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}

	h.Cache.CachePDFGeneration(ctx, resumeID, *result, req.Updates)

	logger.Info("pdf generated",
		zap.String("resume_id", resumeID),
		zap.Int("updates", len(req.Updates)),
		zap.Duration("latency_ms", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, result)
}

// DownloadPDF handles GET /v1/resumes/{id}/pdf/download?url=... and
// streams the generated file from the provider's blob storage.
func (h *ResumeHandler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	pdfURL := r.URL.Query().Get("url")
	if pdfURL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	body, size, err := h.Downloads.Fetch(pdfURL)
	if err != nil {
		logger.Error("pdf download failed", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="resume.pdf"`)
	if n, err := io.Copy(w, body); err != nil {
		// Headers are gone; all we can do is log the broken stream.
		logger.Warn("pdf stream interrupted",
			zap.Int64("written", n),
			zap.Int64("expected", size),
			zap.Error(err),
		)
		return
	}

	logger.Info("pdf downloaded",
		zap.String("resume_id", chi.URLParam(r, "id")),
		zap.Int64("bytes", size),
	)
}

// CacheStats handles GET /v1/cache/stats.
func (h *ResumeHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cache.Stats())
}

// ClearCache handles DELETE /v1/cache. Wired to session teardown in the UI.
func (h *ResumeHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.Cache.ClearAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// sessionFrom extracts the opaque session token the UI sends along, or
// mints one so upstream calls always carry a correlation ID.
func sessionFrom(r *http.Request) string {
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError maps provider failures onto our surface: a caller
// that gave up is not an upstream fault, everything else is a bad gateway.
func writeUpstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	writeError(w, http.StatusBadGateway, "upstream_error")
}
