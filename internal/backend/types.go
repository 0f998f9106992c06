package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UploadResult identifies an uploaded CV on the hosted service.
type UploadResult struct {
	ResumeID string `json:"resume_id"`
	FilePath string `json:"file_path"`
	FileURL  string `json:"file_url"`
}

// SectionAnalysis is the per-section outcome of a CV analysis.
type SectionAnalysis struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	Score       int      `json:"score"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// AnalysisResult is the full analysis of one uploaded CV.
type AnalysisResult struct {
	ResumeID     string            `json:"resume_id"`
	OverallScore int               `json:"overall_score"`
	Summary      string            `json:"summary,omitempty"`
	Sections     []SectionAnalysis `json:"sections"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries a section-scoped improvement conversation.
type ChatRequest struct {
	ResumeID    string        `json:"resume_id"`
	SectionName string        `json:"section_name"`
	Messages    []ChatMessage `json:"messages"`
	SessionID   string        `json:"session_id"`
}

func (r *ChatRequest) Validate() error {
	if r.ResumeID == "" {
		return errors.New("resume_id is required")
	}
	if r.SectionName == "" {
		return errors.New("section_name is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	for i, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("invalid role %q in messages[%d]", m.Role, i)
		}
		if m.Content == "" {
			return fmt.Errorf("content is required for messages[%d]", i)
		}
	}
	return nil
}

// ChatReply is the assistant's answer for one chat turn.
type ChatReply struct {
	Message          string `json:"message"`
	RequiresMoreInfo bool   `json:"requires_more_info"`
}

// EditSectionRequest asks the service to rewrite one section using the
// accepted suggestions.
type EditSectionRequest struct {
	ResumeID    string   `json:"resume_id"`
	SectionName string   `json:"section_name"`
	Content     string   `json:"content"`
	Suggestions []string `json:"suggestions"`
	SessionID   string   `json:"session_id"`
}

func (r *EditSectionRequest) Validate() error {
	if r.ResumeID == "" {
		return errors.New("resume_id is required")
	}
	if r.SectionName == "" {
		return errors.New("section_name is required")
	}
	if r.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// SectionEditResult is the rewritten section plus its new score.
type SectionEditResult struct {
	UpdatedSection string `json:"updated_section"`
	UpdatedScore   int    `json:"updated_score"`
}

// SectionUpdate is one accepted change to fold into the generated PDF.
type SectionUpdate struct {
	SectionName string `json:"section_name"`
	Content     string `json:"content"`
}

// PDFResult locates a generated PDF on the hosted service.
type PDFResult struct {
	PDFURL  string `json:"pdf_url"`
	PDFPath string `json:"pdf_path"`
}

// Client is the interface the rest of the service programs against.
// The hosted CV service is an opaque collaborator: request/response
// only, wire format owned by the provider.
type Client interface {
	UploadFile(ctx context.Context, file io.Reader, filename, sessionID string) (*UploadResult, error)
	Analyze(ctx context.Context, resumeID, sessionID string) (*AnalysisResult, error)
	EditSection(ctx context.Context, req *EditSectionRequest) (*SectionEditResult, error)
	SendChatMessage(ctx context.Context, req *ChatRequest) (*ChatReply, error)
	GeneratePDF(ctx context.Context, resumeID, sessionID string, updates []SectionUpdate) (*PDFResult, error)
}
