package workqueue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docket/internal/workqueue"
)

func newMemoryQueue(t *testing.T) (*workqueue.MemoryQueue[testDoc], *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	q := workqueue.NewMemoryQueue[testDoc]("test-owner", 90*time.Minute, 4*time.Hour, nil,
		workqueue.WithMemoryClock(clock.Now))
	return q, clock
}

func TestMemoryClaimSingleWinner(t *testing.T) {
	q, _ := newMemoryQueue(t)
	ctx := context.Background()
	doc := testDoc{Key: "doc-1"}
	filter := workqueue.Filter{WorkType: "ocr"}
	if err := q.Enqueue(ctx, doc, workqueue.Meta{WorkType: "ocr"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle, err := q.Claim(ctx, doc, filter)
			if err == nil {
				err = handle.Complete(ctx)
			}
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, contention := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case workqueue.IsAlreadyClaimed(err):
			contention++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 || contention != workers-1 {
		t.Fatalf("expected 1 winner and %d losers, got %d/%d", workers-1, wins, contention)
	}
}

func TestMemoryFailedItemReappearsAfterRetryInterval(t *testing.T) {
	q, clock := newMemoryQueue(t)
	ctx := context.Background()
	doc := testDoc{Key: "doc-1"}
	filter := workqueue.Filter{WorkType: "ocr"}
	if err := q.Enqueue(ctx, doc, workqueue.Meta{WorkType: "ocr"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	handle, err := q.Claim(ctx, doc, filter)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := handle.Fail(ctx, errors.New("engine crash"), false); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if count, _ := q.Count(ctx, filter); count != 0 {
		t.Fatalf("failed item claimable before retry interval, count=%d", count)
	}
	clock.Advance(4*time.Hour + time.Minute)
	if count, _ := q.Count(ctx, filter); count != 1 {
		t.Fatalf("failed item not claimable after retry interval, count=%d", count)
	}
	retried, err := q.Claim(ctx, doc, filter)
	if err != nil {
		t.Fatalf("Claim after retry interval: %v", err)
	}
	if err := retried.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestMemoryExpiredClaimBecomesClaimable(t *testing.T) {
	q, clock := newMemoryQueue(t)
	ctx := context.Background()
	doc := testDoc{Key: "doc-1"}
	filter := workqueue.Filter{WorkType: "ocr"}
	if err := q.Enqueue(ctx, doc, workqueue.Meta{WorkType: "ocr"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if _, err := q.Claim(ctx, doc, filter); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := q.Claim(ctx, doc, filter); !workqueue.IsAlreadyClaimed(err) {
		t.Fatalf("expected contention on live claim, got %v", err)
	}

	clock.Advance(91 * time.Minute)
	handle, err := q.Claim(ctx, doc, filter)
	if err != nil {
		t.Fatalf("Claim after expiry: %v", err)
	}
	if err := handle.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestMemoryStaleHandleCannotResolveTakenOverClaim(t *testing.T) {
	q, clock := newMemoryQueue(t)
	ctx := context.Background()
	doc := testDoc{Key: "doc-1"}
	filter := workqueue.Filter{WorkType: "ocr"}
	if err := q.Enqueue(ctx, doc, workqueue.Meta{WorkType: "ocr"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stale, err := q.Claim(ctx, doc, filter)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	clock.Advance(91 * time.Minute)
	fresh, err := q.Claim(ctx, doc, filter)
	if err != nil {
		t.Fatalf("Claim after expiry: %v", err)
	}
	if err := fresh.Complete(ctx); err != nil {
		t.Fatalf("Complete fresh: %v", err)
	}
	// Completing the stale handle is tolerated because the item already
	// reached completed; it must not flip any state.
	if err := stale.Complete(ctx); err != nil {
		t.Fatalf("stale Complete after completion: %v", err)
	}
	if stats := q.Stats(); stats[workqueue.StatusCompleted] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMemoryFetchBatchPaginatesWithCursor(t *testing.T) {
	q, _ := newMemoryQueue(t)
	ctx := context.Background()
	filter := workqueue.Filter{WorkType: "ocr"}
	keys := []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5"}
	for _, key := range keys {
		if err := q.Enqueue(ctx, testDoc{Key: key}, workqueue.Meta{WorkType: "ocr"}); err != nil {
			t.Fatalf("Enqueue %s: %v", key, err)
		}
	}

	var seen []string
	cursor := ""
	for {
		items, next, err := q.FetchBatch(ctx, filter, 2, cursor)
		if err != nil {
			t.Fatalf("FetchBatch: %v", err)
		}
		for _, item := range items {
			seen = append(seen, item.Key)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(seen) != len(keys) {
		t.Fatalf("expected %d items, got %v", len(keys), seen)
	}
	for i, key := range keys {
		if seen[i] != key {
			t.Fatalf("order mismatch at %d: %v", i, seen)
		}
	}
}

func TestMemoryFetchBatchRejectsMalformedCursor(t *testing.T) {
	q, _ := newMemoryQueue(t)
	_, _, err := q.FetchBatch(context.Background(), workqueue.Filter{WorkType: "ocr"}, 1, "not-a-number")
	if err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}
