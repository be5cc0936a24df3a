package discovery

import (
	"context"

	"docket/internal/documents"
	"docket/internal/stage"
)

// FetchHandler is the pipeline handler for the fetch work type: it hands
// claimed documents to the Fetcher.
type FetchHandler struct {
	fetcher Fetcher
}

// NewFetchHandler wraps a Fetcher as a stage handler.
func NewFetchHandler(fetcher Fetcher) *FetchHandler {
	return &FetchHandler{fetcher: fetcher}
}

var _ stage.Handler = (*FetchHandler)(nil)

func (h *FetchHandler) Name() string     { return "fetch" }
func (h *FetchHandler) WorkType() string { return documents.WorkTypeFetch }
func (h *FetchHandler) Deferred() bool   { return false }

// Process downloads the document. The fetcher persists the raw bytes, so
// completing the claim afterwards is safe.
func (h *FetchHandler) Process(ctx context.Context, doc documents.Document) (documents.Document, error) {
	return h.fetcher.Fetch(ctx, doc)
}

// HealthCheck reports ready as long as a fetcher is wired.
func (h *FetchHandler) HealthCheck(context.Context) stage.Health {
	if h.fetcher == nil {
		return stage.Unhealthy("fetch", "no fetcher configured")
	}
	return stage.Healthy("fetch")
}
