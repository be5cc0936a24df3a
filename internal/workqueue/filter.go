package workqueue

import (
	"errors"
	"strings"
	"time"
)

// Filter selects the slice of the backlog a caller wants to work on. It is
// immutable per-call configuration, never persisted.
type Filter struct {
	// WorkType is required and scopes every queue operation.
	WorkType string
	// SourceID, when set, restricts to items from one discovery source.
	SourceID string
	// MimeType, when set, restricts to items of one media type.
	MimeType string
	// Version scopes claim exclusivity: reprocessing a backlog under a new
	// version does not contend with claims from the old one.
	Version int
	// RetryInterval overrides how long failed items wait before becoming
	// eligible again. Zero means the backend default.
	RetryInterval time.Duration
}

// Validate reports whether the filter is usable.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.WorkType) == "" {
		return errors.New("filter: work type is required")
	}
	if f.Version < 0 {
		return errors.New("filter: version must not be negative")
	}
	if f.RetryInterval < 0 {
		return errors.New("filter: retry interval must not be negative")
	}
	return nil
}

func (f Filter) retryIntervalOr(fallback time.Duration) time.Duration {
	if f.RetryInterval > 0 {
		return f.RetryInterval
	}
	return fallback
}
