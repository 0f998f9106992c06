package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"cvpolish-core/internal/backend"
	"cvpolish-core/internal/cache"
)

type mockBackend struct {
	uploadCalls  int
	analyzeCalls int
	editCalls    int
	chatCalls    int
	pdfCalls     int

	uploadResp  *backend.UploadResult
	analyzeResp *backend.AnalysisResult
	editResp    *backend.SectionEditResult
	chatResp    *backend.ChatReply
	pdfResp     *backend.PDFResult

	err         error
	lastChatReq *backend.ChatRequest
}

func (m *mockBackend) UploadFile(ctx context.Context, file io.Reader, filename, sessionID string) (*backend.UploadResult, error) {
	m.uploadCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.uploadResp, nil
}

func (m *mockBackend) Analyze(ctx context.Context, resumeID, sessionID string) (*backend.AnalysisResult, error) {
	m.analyzeCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.analyzeResp, nil
}

func (m *mockBackend) EditSection(ctx context.Context, req *backend.EditSectionRequest) (*backend.SectionEditResult, error) {
	m.editCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.editResp, nil
}

func (m *mockBackend) SendChatMessage(ctx context.Context, req *backend.ChatRequest) (*backend.ChatReply, error) {
	m.chatCalls++
	m.lastChatReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.chatResp, nil
}

func (m *mockBackend) GeneratePDF(ctx context.Context, resumeID, sessionID string, updates []backend.SectionUpdate) (*backend.PDFResult, error) {
	m.pdfCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.pdfResp, nil
}

// newTestRouter wires the handler behind the same route shapes the real
// router uses, so URL params resolve through chi.
func newTestRouter(t *testing.T, mock *mockBackend) *chi.Mux {
	t.Helper()

	store := cache.NewFileBlobStore(t.TempDir())
	h := NewResumeHandler(mock, cache.NewService(store), nil)

	r := chi.NewRouter()
	r.Post("/v1/resumes", h.Upload)
	r.Route("/v1/resumes/{id}", func(r chi.Router) {
		r.Post("/analyze", h.Analyze)
		r.Post("/sections/{section}/edit", h.EditSection)
		r.Post("/sections/{section}/chat", h.Chat)
		r.Get("/sections/{section}/chat", h.ChatHistory)
		r.Post("/pdf", h.GeneratePDF)
	})
	r.Get("/v1/cache/stats", h.CacheStats)
	r.Delete("/v1/cache", h.ClearCache)
	return r
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", "sess-test")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestAnalyzeCalledOnceForUnchangedContent(t *testing.T) {
	mock := &mockBackend{
		analyzeResp: &backend.AnalysisResult{
			ResumeID:     "r1",
			OverallScore: 78,
			Sections:     []backend.SectionAnalysis{{Name: "summary", Score: 70}},
		},
	}
	router := newTestRouter(t, mock)

	body := map[string]string{"pdf_content": "same pdf bytes"}

	first := postJSON(t, router, "/v1/resumes/r1/analyze", body)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body)
	}
	second := postJSON(t, router, "/v1/resumes/r1/analyze", body)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", second.Code, second.Body)
	}

	if mock.analyzeCalls != 1 {
		t.Fatalf("unchanged content must hit the cache, provider called %d times", mock.analyzeCalls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("cached response differs from original:\n%s\n%s", first.Body, second.Body)
	}

	// Changed content is a guaranteed miss.
	third := postJSON(t, router, "/v1/resumes/r1/analyze", map[string]string{"pdf_content": "edited pdf bytes"})
	if third.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", third.Code)
	}
	if mock.analyzeCalls != 2 {
		t.Fatalf("changed content must re-invoke the provider, got %d calls", mock.analyzeCalls)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	router := newTestRouter(t, &mockBackend{})

	rr := postJSON(t, router, "/v1/resumes/r1/analyze", map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty pdf_content must be rejected, got %d", rr.Code)
	}
}

func TestAnalyzeUpstreamFault(t *testing.T) {
	mock := &mockBackend{err: errors.New("provider exploded")}
	router := newTestRouter(t, mock)

	rr := postJSON(t, router, "/v1/resumes/r1/analyze", map[string]string{"pdf_content": "x"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp["error"] != "upstream_error" {
		t.Fatalf("unexpected error body: %v", resp)
	}
}

func TestEditSectionCachedByContent(t *testing.T) {
	mock := &mockBackend{
		editResp: &backend.SectionEditResult{UpdatedSection: "better summary", UpdatedScore: 90},
	}
	router := newTestRouter(t, mock)

	body := map[string]interface{}{
		"content":     "old summary",
		"suggestions": []string{"quantify impact"},
	}

	for i := 0; i < 2; i++ {
		rr := postJSON(t, router, "/v1/resumes/r1/sections/summary/edit", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
		}
	}
	if mock.editCalls != 1 {
		t.Fatalf("identical edit inputs must be served from cache, got %d calls", mock.editCalls)
	}

	// Dropping a suggestion changes the key.
	rr := postJSON(t, router, "/v1/resumes/r1/sections/summary/edit", map[string]interface{}{
		"content": "old summary",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if mock.editCalls != 2 {
		t.Fatalf("different suggestions must miss, got %d calls", mock.editCalls)
	}
}

func TestChatAccumulatesConversation(t *testing.T) {
	mock := &mockBackend{
		chatResp: &backend.ChatReply{Message: "try leading with metrics"},
	}
	router := newTestRouter(t, mock)

	rr := postJSON(t, router, "/v1/resumes/r1/sections/summary/chat", map[string]string{
		"message": "how can I improve this?",
		"context": "summary section, v1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}

	rr = postJSON(t, router, "/v1/resumes/r1/sections/summary/chat", map[string]string{
		"message": "which metrics?",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}

	// The second upstream call must carry the whole history:
	// user, assistant, user.
	if mock.lastChatReq == nil || len(mock.lastChatReq.Messages) != 3 {
		t.Fatalf("expected 3 messages in second turn, got %+v", mock.lastChatReq)
	}
	if mock.lastChatReq.Messages[1].Role != backend.RoleAssistant {
		t.Fatalf("assistant reply missing from history: %+v", mock.lastChatReq.Messages)
	}

	// History endpoint returns the final snapshot with 4 messages.
	req := httptest.NewRequest(http.MethodGet, "/v1/resumes/r1/sections/summary/chat", nil)
	hr := httptest.NewRecorder()
	router.ServeHTTP(hr, req)
	if hr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", hr.Code)
	}
	var snap cache.ChatSnapshot
	if err := json.Unmarshal(hr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Messages) != 4 {
		t.Fatalf("expected 4 stored messages, got %d", len(snap.Messages))
	}
	if snap.Context != "summary section, v1" {
		t.Fatalf("conversation context lost: %q", snap.Context)
	}
}

func TestChatHistoryMissingIs404(t *testing.T) {
	router := newTestRouter(t, &mockBackend{})

	req := httptest.NewRequest(http.MethodGet, "/v1/resumes/r1/sections/skills/chat", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGeneratePDFCachedByUpdates(t *testing.T) {
	mock := &mockBackend{
		pdfResp: &backend.PDFResult{PDFURL: "https://cdn/out.pdf", PDFPath: "/blobs/out.pdf"},
	}
	router := newTestRouter(t, mock)

	body := map[string]interface{}{
		"updates": []backend.SectionUpdate{{SectionName: "summary", Content: "new text"}},
	}

	for i := 0; i < 2; i++ {
		rr := postJSON(t, router, "/v1/resumes/r1/pdf", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
		}
	}
	if mock.pdfCalls != 1 {
		t.Fatalf("same update list must be served from cache, got %d calls", mock.pdfCalls)
	}

	rr := postJSON(t, router, "/v1/resumes/r1/pdf", map[string]interface{}{
		"updates": []backend.SectionUpdate{{SectionName: "summary", Content: "different text"}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if mock.pdfCalls != 2 {
		t.Fatalf("different updates must re-invoke the provider, got %d calls", mock.pdfCalls)
	}
}

func TestUploadMintsIDWhenProviderOmitsIt(t *testing.T) {
	mock := &mockBackend{uploadResp: &backend.UploadResult{FileURL: "https://cdn/in.pdf"}}
	router := newTestRouter(t, mock)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "resume.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.7 fake")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/resumes", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body)
	}
	var resp backend.UploadResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ResumeID == "" {
		t.Fatalf("expected a minted resume ID")
	}
}

func TestClearCacheForcesReanalysis(t *testing.T) {
	mock := &mockBackend{
		analyzeResp: &backend.AnalysisResult{ResumeID: "r1", OverallScore: 60},
	}
	router := newTestRouter(t, mock)

	body := map[string]string{"pdf_content": "content"}
	postJSON(t, router, "/v1/resumes/r1/analyze", body)

	req := httptest.NewRequest(http.MethodDelete, "/v1/cache", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	postJSON(t, router, "/v1/resumes/r1/analyze", body)
	if mock.analyzeCalls != 2 {
		t.Fatalf("cleared cache must re-invoke the provider, got %d calls", mock.analyzeCalls)
	}
}

func TestCacheStats(t *testing.T) {
	mock := &mockBackend{
		analyzeResp: &backend.AnalysisResult{ResumeID: "r1"},
	}
	router := newTestRouter(t, mock)

	postJSON(t, router, "/v1/resumes/r1/analyze", map[string]string{"pdf_content": "c"})

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats cache.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Analysis != 1 {
		t.Fatalf("expected one cached analysis, got %+v", stats)
	}
}
