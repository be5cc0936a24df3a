package workqueue

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"

	"docket/internal/logging"
)

// ErrHandleConsumed is returned when Complete or Fail is invoked on a handle
// that was already resolved.
var ErrHandleConsumed = errors.New("work handle already consumed")

// Handle is the proof of a successful claim. It must be resolved by exactly
// one call to Complete or Fail. A handle that is garbage collected
// unresolved only logs a warning: the backend's claim expiry is what makes
// the item reclaimable, never this diagnostic.
type Handle[T Item] struct {
	item     T
	c        claim
	resolver claimResolver
	consumed *atomic.Bool
	cleanup  runtime.Cleanup
}

type handleLeak struct {
	consumed *atomic.Bool
	logger   *slog.Logger
	workType string
	itemKey  string
}

func newHandle[T Item](item T, c claim, resolver claimResolver, logger *slog.Logger) *Handle[T] {
	if logger == nil {
		logger = logging.NewNop()
	}
	consumed := new(atomic.Bool)
	h := &Handle[T]{item: item, c: c, resolver: resolver, consumed: consumed}
	// The cleanup closure must not capture h itself or it would never run.
	h.cleanup = runtime.AddCleanup(h, func(leak handleLeak) {
		if !leak.consumed.Load() {
			leak.logger.Warn("work handle discarded without complete or fail; claim will expire on its own",
				logging.String(logging.FieldWorkType, leak.workType),
				logging.String(logging.FieldItemKey, leak.itemKey),
				logging.String(logging.FieldEventType, "handle_leaked"),
			)
		}
	}, handleLeak{consumed: consumed, logger: logger, workType: c.workType, itemKey: c.itemKey})
	return h
}

// Item returns the claimed item.
func (h *Handle[T]) Item() T { return h.item }

// Owner returns the worker identity that holds the claim.
func (h *Handle[T]) Owner() string { return h.c.owner }

// Complete releases the claim and marks the item done. Callers must persist
// their computed result before calling Complete, so a crash between the two
// never hides a finished result behind a live claim.
//
// The handle counts as consumed even when the backend call fails; in that
// case the claim simply expires on its own.
func (h *Handle[T]) Complete(ctx context.Context) error {
	if !h.consumed.CompareAndSwap(false, true) {
		return ErrHandleConsumed
	}
	h.cleanup.Stop()
	return h.resolver.completeClaim(ctx, h.c)
}

// Fail releases the claim and records the error; the item becomes eligible
// again after the filter's retry interval. The requeue flag requests
// immediate redelivery from broker-style backends; both shipped backends
// poll and ignore it.
func (h *Handle[T]) Fail(ctx context.Context, cause error, requeue bool) error {
	if !h.consumed.CompareAndSwap(false, true) {
		return ErrHandleConsumed
	}
	h.cleanup.Stop()
	return h.resolver.failClaim(ctx, h.c, cause, requeue)
}

// Resolved reports whether Complete or Fail has already run.
func (h *Handle[T]) Resolved() bool { return h.consumed.Load() }
