package documents

import (
	"net/url"
	"strings"
	"time"
)

// Work types a document passes through, in pipeline order.
const (
	WorkTypeFetch    = "fetch"
	WorkTypeExtract  = "extract"
	WorkTypeOCR      = "ocr"
	WorkTypeAnalyze  = "analyze"
	WorkTypeAnnotate = "annotate"
)

// WorkTypes returns the pipeline's work types in execution order.
func WorkTypes() []string {
	return []string{WorkTypeFetch, WorkTypeExtract, WorkTypeOCR, WorkTypeAnalyze, WorkTypeAnnotate}
}

// Document is one acquirable record from a discovery source. ID is the
// stable work key: the same document rediscovered later maps to the same
// queue row.
type Document struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	MimeType    string    `json:"mime_type,omitempty"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	RetrievedAt time.Time `json:"retrieved_at,omitzero"`
	SHA256      string    `json:"sha256,omitempty"`
	// LocalPath is set once the fetch stage has stored the raw document.
	LocalPath string `json:"local_path,omitempty"`
	// TextPath is set once extraction or OCR produced plain text.
	TextPath string `json:"text_path,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	// DuplicateOf names an earlier document whose text this one near-matches.
	// Sources republish the same filing under multiple URLs; the flag lets
	// downstream stages skip redundant analysis.
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// WorkKey returns the stable queue key for this document.
func (d Document) WorkKey() string { return d.ID }

// Domain returns the lowercased host the document is served from, without a
// port. Rate limiting keys on this value.
func (d Document) Domain() string {
	parsed, err := url.Parse(d.URL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
