package workqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"docket/internal/workqueue"
)

func claimOne(t *testing.T) *workqueue.Handle[testDoc] {
	t.Helper()
	q, _ := newMemoryQueue(t)
	ctx := context.Background()
	doc := testDoc{Key: "doc-1"}
	if err := q.Enqueue(ctx, doc, workqueue.Meta{WorkType: "fetch"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	handle, err := q.Claim(ctx, doc, workqueue.Filter{WorkType: "fetch"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	return handle
}

func TestHandleCompleteConsumes(t *testing.T) {
	handle := claimOne(t)
	ctx := context.Background()

	if handle.Resolved() {
		t.Fatal("fresh handle should not be resolved")
	}
	if err := handle.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !handle.Resolved() {
		t.Fatal("handle should be resolved after Complete")
	}
	if err := handle.Complete(ctx); !errors.Is(err, workqueue.ErrHandleConsumed) {
		t.Fatalf("second Complete: expected ErrHandleConsumed, got %v", err)
	}
	if err := handle.Fail(ctx, errors.New("late"), false); !errors.Is(err, workqueue.ErrHandleConsumed) {
		t.Fatalf("Fail after Complete: expected ErrHandleConsumed, got %v", err)
	}
}

func TestHandleFailConsumes(t *testing.T) {
	handle := claimOne(t)
	ctx := context.Background()

	if err := handle.Fail(ctx, errors.New("boom"), false); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := handle.Complete(ctx); !errors.Is(err, workqueue.ErrHandleConsumed) {
		t.Fatalf("Complete after Fail: expected ErrHandleConsumed, got %v", err)
	}
}

func TestHandleConcurrentResolveSingleWinner(t *testing.T) {
	handle := claimOne(t)
	ctx := context.Background()

	results := make(chan error, 2)
	go func() { results <- handle.Complete(ctx) }()
	go func() { results <- handle.Fail(ctx, errors.New("boom"), false) }()

	var consumed, resolved int
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if errors.Is(err, workqueue.ErrHandleConsumed) {
				consumed++
			} else if err == nil {
				resolved++
			} else {
				t.Fatalf("unexpected resolve error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("resolve did not finish")
		}
	}
	if resolved != 1 || consumed != 1 {
		t.Fatalf("expected exactly one resolution, got resolved=%d consumed=%d", resolved, consumed)
	}
}

func TestHandleExposesItemAndOwner(t *testing.T) {
	handle := claimOne(t)
	if handle.Item().Key != "doc-1" {
		t.Fatalf("unexpected item: %+v", handle.Item())
	}
	if handle.Owner() != "test-owner" {
		t.Fatalf("unexpected owner: %q", handle.Owner())
	}
	if err := handle.Complete(context.Background()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}
