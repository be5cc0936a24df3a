package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docket/internal/config"
	"docket/internal/documents"
	"docket/internal/stage"
)

// Handler is the pipeline handler for the ocr work type. OCR is deferred:
// recognition takes orders of magnitude longer than fetching, so the deep
// topology runs it on the worker pool.
type Handler struct {
	engine      Engine
	deduper     *documents.Deduper
	documentDir string
}

// NewHandler wraps an engine as a stage handler. A non-nil deduper flags
// documents whose recognized text near-matches an earlier document.
func NewHandler(cfg *config.Config, engine Engine, deduper *documents.Deduper) *Handler {
	return &Handler{engine: engine, deduper: deduper, documentDir: cfg.Paths.DocumentDir}
}

var _ stage.Handler = (*Handler)(nil)

func (h *Handler) Name() string     { return "ocr" }
func (h *Handler) WorkType() string { return documents.WorkTypeOCR }
func (h *Handler) Deferred() bool   { return true }

// Process recognizes the stored document and writes the text alongside it.
// The text file is persisted before the claim completes.
func (h *Handler) Process(ctx context.Context, doc documents.Document) (documents.Document, error) {
	if doc.LocalPath == "" {
		return doc, fmt.Errorf("document %s has not been fetched", doc.ID)
	}

	result, err := h.engine.Recognize(ctx, doc.LocalPath)
	if err != nil {
		return doc, err
	}
	if strings.TrimSpace(result.Text) == "" {
		return doc, fmt.Errorf("document %s produced no text", doc.ID)
	}

	target := documents.TextStoragePath(h.documentDir, doc)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return doc, fmt.Errorf("create text dir: %w", err)
	}
	if err := os.WriteFile(target, []byte(result.Text), 0o644); err != nil {
		return doc, fmt.Errorf("write recognized text: %w", err)
	}

	doc.TextPath = target
	if result.Pages > 0 {
		doc.Pages = result.Pages
	}
	if h.deduper != nil {
		doc.DuplicateOf = h.deduper.Observe(doc.ID, result.Text)
	}
	return doc, nil
}

// HealthCheck reports whether the engine can run here.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if h.engine == nil {
		return stage.Unhealthy("ocr", "no engine configured")
	}
	if !h.engine.Available() {
		return stage.Unhealthy("ocr", fmt.Sprintf("engine %s is not available", h.engine.Name()))
	}
	return stage.Healthy("ocr")
}
