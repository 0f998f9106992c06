package cache

import (
	"encoding/json"
	"strings"

	"cvpolish-core/internal/backend"
	"cvpolish-core/internal/contenthash"
)

// Cache keys embed a content hash next to the resume ID so a changed
// input is a guaranteed miss even when the surrounding identifiers stay
// the same. Hashes are fast and non-cryptographic; see contenthash.

// AnalysisKey keys an analysis result by resume and PDF text content.
func AnalysisKey(resumeID, pdfContent string) string {
	return resumeID + "_" + contenthash.Sum(pdfContent)
}

// ChatKey keys a conversation snapshot by resume and section. No hash:
// the conversation is last-write-wins per section.
func ChatKey(resumeID, sectionName string) string {
	return resumeID + "_" + sectionName
}

// SectionEditKey keys an edit result by section plus a digest of the
// original content and the applied suggestions. Any change to either
// input yields a new key.
func SectionEditKey(resumeID, sectionName, originalContent string, suggestions []string) string {
	parts := make([]string, 0, len(suggestions)+1)
	parts = append(parts, originalContent)
	parts = append(parts, suggestions...)
	return resumeID + "_" + sectionName + "_" + contenthash.Sum(parts...)
}

// PDFKey keys a generated PDF by resume and the serialized update list.
func PDFKey(resumeID string, updates []backend.SectionUpdate) string {
	serialized, err := json.Marshal(updates)
	if err != nil {
		// SectionUpdate is plain strings; marshal cannot realistically
		// fail, but fall back to a field join rather than panic.
		var sb strings.Builder
		for _, u := range updates {
			sb.WriteString(u.SectionName)
			sb.WriteByte(':')
			sb.WriteString(u.Content)
			sb.WriteByte('\n')
		}
		serialized = []byte(sb.String())
	}
	return resumeID + "_" + contenthash.Sum(string(serialized))
}
