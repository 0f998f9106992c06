package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	maxRequestSize = 4 * 1024 * 1024 // 4MB total payload (CV PDFs are small)
)

// providerErrorResponse is the error envelope the hosted service returns.
type providerErrorResponse struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// UploadFile sends the CV to the hosted service and returns its identifiers.
func (c *client) UploadFile(parentCtx context.Context, file io.Reader, filename, sessionID string) (*UploadResult, error) {
	start := time.Now()

	if file == nil {
		return nil, fmt.Errorf("cvbackend: file is nil")
	}
	if filename == "" {
		filename = "resume.pdf"
	}

	// Build the multipart body once so every retry attempt can replay it.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("cvbackend: build multipart: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("cvbackend: read upload: %w", err)
	}
	if err := mw.WriteField("session_id", sessionID); err != nil {
		return nil, fmt.Errorf("cvbackend: build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("cvbackend: build multipart: %w", err)
	}

	if body.Len() > maxRequestSize {
		return nil, fmt.Errorf("cvbackend: upload too large (%d bytes, max %d)", body.Len(), maxRequestSize)
	}

	ctx, cancel := c.requestContext(parentCtx)
	defer cancel()

	url := c.cfg.BaseURL + "/v1/files"
	bodyBytes := body.Bytes()

	resp, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("cvbackend: build HTTP request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", mw.FormDataContentType())
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		c.logger.Error("upload failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}

	var out UploadResult
	if err := c.decodeResponse(resp, &out); err != nil {
		return nil, err
	}

	c.logger.Info("upload completed",
		zap.String("resume_id", out.ResumeID),
		zap.Duration("duration", time.Since(start)),
	)
	return &out, nil
}

// Analyze requests a full analysis of the uploaded CV.
func (c *client) Analyze(parentCtx context.Context, resumeID, sessionID string) (*AnalysisResult, error) {
	if resumeID == "" {
		return nil, fmt.Errorf("cvbackend: resume_id is required")
	}

	req := map[string]string{
		"resume_id":  resumeID,
		"session_id": sessionID,
	}

	var out AnalysisResult
	if err := c.postJSON(parentCtx, "/v1/analyze", req, &out); err != nil {
		return nil, err
	}
	if len(out.Sections) == 0 {
		c.logger.Error("analysis returned no sections",
			zap.String("resume_id", resumeID),
		)
		return nil, fmt.Errorf("cvbackend: analysis returned no sections")
	}
	return &out, nil
}

// EditSection asks the service to rewrite one section.
func (c *client) EditSection(parentCtx context.Context, req *EditSectionRequest) (*SectionEditResult, error) {
	if req == nil {
		return nil, fmt.Errorf("cvbackend: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("cvbackend: invalid request: %w", err)
	}

	var out SectionEditResult
	if err := c.postJSON(parentCtx, "/v1/sections/edit", req, &out); err != nil {
		return nil, err
	}
	if out.UpdatedSection == "" {
		return nil, fmt.Errorf("cvbackend: edit returned empty section")
	}
	return &out, nil
}

// SendChatMessage runs one turn of the section improvement conversation.
func (c *client) SendChatMessage(parentCtx context.Context, req *ChatRequest) (*ChatReply, error) {
	if req == nil {
		return nil, fmt.Errorf("cvbackend: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("cvbackend: invalid request: %w", err)
	}

	var out ChatReply
	if err := c.postJSON(parentCtx, "/v1/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GeneratePDF folds the accepted updates into a freshly generated PDF.
func (c *client) GeneratePDF(parentCtx context.Context, resumeID, sessionID string, updates []SectionUpdate) (*PDFResult, error) {
	if resumeID == "" {
		return nil, fmt.Errorf("cvbackend: resume_id is required")
	}

	req := struct {
		ResumeID  string          `json:"resume_id"`
		SessionID string          `json:"session_id"`
		Updates   []SectionUpdate `json:"updates"`
	}{ResumeID: resumeID, SessionID: sessionID, Updates: updates}

	var out PDFResult
	if err := c.postJSON(parentCtx, "/v1/pdf", req, &out); err != nil {
		return nil, err
	}
	if out.PDFURL == "" {
		return nil, fmt.Errorf("cvbackend: pdf generation returned no url")
	}
	return &out, nil
}

// requestContext derives the per-request timeout context.
func (c *client) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.UpstreamTimeout > 0 {
		return context.WithTimeout(parent, c.cfg.UpstreamTimeout)
	}
	return context.WithCancel(parent)
}

// postJSON sends a JSON request through the retry wrapper and decodes
// the response into out.
func (c *client) postJSON(parentCtx context.Context, path string, reqBody, out interface{}) error {
	start := time.Now()

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("cvbackend: marshal request: %w", err)
	}
	if len(bodyBytes) > maxRequestSize {
		return fmt.Errorf("cvbackend: request too large (%d bytes, max %d)", len(bodyBytes), maxRequestSize)
	}

	ctx, cancel := c.requestContext(parentCtx)
	defer cancel()

	url := c.cfg.BaseURL + path

	resp, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("cvbackend: build HTTP request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		c.logger.Error("cv service request failed",
			zap.String("path", path),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}

	if err := c.decodeResponse(resp, out); err != nil {
		return err
	}

	c.logger.Info("cv service request completed",
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// decodeResponse maps non-2xx bodies to errors and decodes success bodies.
func (c *client) decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)

		// Try to parse structured error
		var perr providerErrorResponse
		if err := json.Unmarshal(body, &perr); err == nil && perr.Error.Message != "" {
			c.logger.Error("cv service error",
				zap.Int("status", resp.StatusCode),
				zap.String("error_type", perr.Error.Type),
				zap.String("error_message", perr.Error.Message),
			)
			return fmt.Errorf("cvbackend: upstream %d: %s (%s)",
				resp.StatusCode, perr.Error.Message, perr.Error.Type)
		}

		// Fallback to raw body
		c.logger.Error("cv service upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return fmt.Errorf("cvbackend: upstream %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cvbackend: decode upstream response: %w", err)
	}
	return nil
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
