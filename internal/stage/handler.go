// Package stage binds document handlers to the work queue and exposes them
// as pipeline stages: fetch a batch, claim each item, process it, then
// complete or fail the claim.
package stage

import (
	"context"

	"docket/internal/documents"
)

// Handler describes the contract a pipeline stage needs from each document
// processor.
type Handler interface {
	// Name identifies the handler in events, logs, and health output.
	Name() string

	// WorkType is the queue work type this handler consumes.
	WorkType() string

	// Deferred marks slow handlers (OCR, LLM analysis) for the deep
	// topology's worker pool.
	Deferred() bool

	// Process performs the stage's work on one claimed document and returns
	// the updated document for the next stage. Process must persist its own
	// results before returning; the claim is only completed afterwards.
	Process(ctx context.Context, doc documents.Document) (documents.Document, error)

	// HealthCheck reports whether the handler is ready to process work.
	HealthCheck(ctx context.Context) Health
}

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
