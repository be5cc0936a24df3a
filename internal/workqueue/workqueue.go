package workqueue

import (
	"context"
	"time"
)

// Item is implemented by anything that can flow through a Queue. The work
// key must be stable and unique within a work type.
type Item interface {
	WorkKey() string
}

// Meta carries enqueue-time attributes used later for filtering and claim
// exclusivity. WorkType is required; the zero values of the remaining fields
// mean "unset".
type Meta struct {
	WorkType string
	SourceID string
	MimeType string
	Version  int
}

// Queue is the claim/complete/fail lifecycle over a backlog of items.
// Complete and Fail live on the Handle returned by Claim; exactly one of
// them must be invoked per successful claim.
type Queue[T Item] interface {
	// Enqueue adds an item to the backlog. Enqueueing an item whose
	// (work_type, version, key) already exists is a no-op.
	Enqueue(ctx context.Context, item T, meta Meta) error

	// Count estimates how many items are currently claimable under the
	// filter. It is index-backed and cheap, not a post-claim guarantee.
	Count(ctx context.Context, filter Filter) (int64, error)

	// FetchBatch returns up to limit claimable items, oldest first, plus a
	// cursor for backends that need one to continue. Backends with native
	// offsets ignore the cursor.
	FetchBatch(ctx context.Context, filter Filter, limit int, cursor string) ([]T, string, error)

	// Claim atomically takes an exclusive lease on one item. Exactly one
	// concurrent caller succeeds; the rest observe ErrAlreadyClaimed.
	Claim(ctx context.Context, item T, filter Filter) (*Handle[T], error)
}

// claim identifies how a live claim is tracked by its backend.
type claim struct {
	id            int64
	workType      string
	version       int
	itemKey       string
	owner         string
	retryInterval time.Duration
}

// claimResolver is the backend half of Handle.Complete / Handle.Fail.
type claimResolver interface {
	completeClaim(ctx context.Context, c claim) error
	failClaim(ctx context.Context, c claim, cause error, requeue bool) error
}
