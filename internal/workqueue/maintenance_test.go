package workqueue_test

import (
	"context"
	"errors"
	"testing"

	"docket/internal/testsupport"
	"docket/internal/workqueue"
)

func seedLifecycle(t *testing.T) (*workqueue.Store[testDoc], *workqueue.DB) {
	t.Helper()
	store, db, _ := openStore(t)
	ctx := context.Background()
	filter := workqueue.Filter{WorkType: "extract"}

	for _, key := range []string{"avail-1", "done-1", "failed-1"} {
		testsupport.MustEnqueue[testDoc](t, store, testDoc{Key: key}, workqueue.Meta{WorkType: "extract"})
	}
	done, err := store.Claim(ctx, testDoc{Key: "done-1"}, filter)
	if err != nil {
		t.Fatalf("Claim done-1: %v", err)
	}
	if err := done.Complete(ctx); err != nil {
		t.Fatalf("Complete done-1: %v", err)
	}
	failed, err := store.Claim(ctx, testDoc{Key: "failed-1"}, filter)
	if err != nil {
		t.Fatalf("Claim failed-1: %v", err)
	}
	if err := failed.Fail(ctx, errors.New("parse error"), false); err != nil {
		t.Fatalf("Fail failed-1: %v", err)
	}
	return store, db
}

func TestStatsAndHealthCountLifecycleStates(t *testing.T) {
	_, db := seedLifecycle(t)
	ctx := context.Background()

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := map[workqueue.Status]int{
		workqueue.StatusAvailable: 1,
		workqueue.StatusCompleted: 1,
		workqueue.StatusFailed:    1,
	}
	for status, count := range want {
		if stats[status] != count {
			t.Fatalf("status %s: expected %d, got %+v", status, count, stats)
		}
	}

	health, err := db.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Available != 1 || health.Completed != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}

func TestStatsByWorkTypeGroupsCounts(t *testing.T) {
	store, db, _ := openStore(t)
	ctx := context.Background()
	testsupport.MustEnqueue[testDoc](t, store, testDoc{Key: "a"}, workqueue.Meta{WorkType: "analyze"})
	testsupport.MustEnqueue[testDoc](t, store, testDoc{Key: "b"}, workqueue.Meta{WorkType: "fetch"})
	testsupport.MustEnqueue[testDoc](t, store, testDoc{Key: "c"}, workqueue.Meta{WorkType: "fetch"})

	stats, err := db.StatsByWorkType(ctx)
	if err != nil {
		t.Fatalf("StatsByWorkType: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 work types, got %+v", stats)
	}
	if stats[0].WorkType != "analyze" || stats[0].Available != 1 {
		t.Fatalf("unexpected first group: %+v", stats[0])
	}
	if stats[1].WorkType != "fetch" || stats[1].Available != 2 {
		t.Fatalf("unexpected second group: %+v", stats[1])
	}
}

func TestRetryFailedRestoresAvailability(t *testing.T) {
	store, db := seedLifecycle(t)
	ctx := context.Background()
	filter := workqueue.Filter{WorkType: "extract"}

	retried, err := db.RetryFailed(ctx, "extract")
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 retried item, got %d", retried)
	}

	handle, err := store.Claim(ctx, testDoc{Key: "failed-1"}, filter)
	if err != nil {
		t.Fatalf("Claim after retry: %v", err)
	}
	if err := handle.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestRetryFailedScopedToKeys(t *testing.T) {
	store, db, _ := openStore(t)
	ctx := context.Background()
	filter := workqueue.Filter{WorkType: "extract"}
	for _, key := range []string{"f-1", "f-2"} {
		testsupport.MustEnqueue[testDoc](t, store, testDoc{Key: key}, workqueue.Meta{WorkType: "extract"})
		handle, err := store.Claim(ctx, testDoc{Key: key}, filter)
		if err != nil {
			t.Fatalf("Claim %s: %v", key, err)
		}
		if err := handle.Fail(ctx, errors.New("boom"), false); err != nil {
			t.Fatalf("Fail %s: %v", key, err)
		}
	}

	retried, err := db.RetryFailed(ctx, "extract", "f-2")
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 retried item, got %d", retried)
	}
	records, err := db.List(ctx, workqueue.StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].ItemKey != "f-1" {
		t.Fatalf("expected only f-1 still failed, got %+v", records)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	_, db := seedLifecycle(t)
	ctx := context.Background()

	all, err := db.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	failed, err := db.List(ctx, workqueue.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ItemKey != "failed-1" {
		t.Fatalf("unexpected failed records: %+v", failed)
	}
	if failed[0].ErrorMessage != "parse error" {
		t.Fatalf("expected recorded error message, got %q", failed[0].ErrorMessage)
	}
	if failed[0].NextEligibleAt == nil {
		t.Fatal("failed record should carry a next-eligible timestamp")
	}
	if failed[0].Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", failed[0].Attempts)
	}
}

func TestClearVariants(t *testing.T) {
	_, db := seedLifecycle(t)
	ctx := context.Background()

	cleared, err := db.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 completed cleared, got %d", cleared)
	}
	cleared, err = db.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("ClearFailed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 failed cleared, got %d", cleared)
	}
	cleared, err = db.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 remaining item cleared, got %d", cleared)
	}
}

func TestRemoveDeletesSingleRow(t *testing.T) {
	store, db, _ := openStore(t)
	ctx := context.Background()
	testsupport.MustEnqueue[testDoc](t, store, testDoc{Key: "doc-1"}, workqueue.Meta{WorkType: "fetch"})

	removed, err := db.Remove(ctx, "fetch", 0, "doc-1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	removed, err = db.Remove(ctx, "fetch", 0, "doc-1")
	if err != nil {
		t.Fatalf("Remove again: %v", err)
	}
	if removed {
		t.Fatal("second removal should be a no-op")
	}
}

func TestCheckHealthReportsHealthyDatabase(t *testing.T) {
	_, db := seedLifecycle(t)

	health, err := db.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.TotalItems != 3 {
		t.Fatalf("expected 3 items, got %d", health.TotalItems)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := workqueue.ParseStatus(" Failed "); !ok || status != workqueue.StatusFailed {
		t.Fatalf("ParseStatus failed: %v %v", status, ok)
	}
	if _, ok := workqueue.ParseStatus("bogus"); ok {
		t.Fatal("expected bogus status to be rejected")
	}
}
