package testsupport

import (
	"context"
	"testing"

	"docket/internal/config"
	"docket/internal/logging"
	"docket/internal/workqueue"
)

// MustOpenDB opens the work database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config, opts ...workqueue.DBOption) *workqueue.DB {
	t.Helper()

	db, err := workqueue.Open(cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("workqueue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustEnqueue adds an item to the queue and fails the test on error.
func MustEnqueue[T workqueue.Item](t testing.TB, q workqueue.Queue[T], item T, meta workqueue.Meta) {
	t.Helper()

	if err := q.Enqueue(context.Background(), item, meta); err != nil {
		t.Fatalf("enqueue %s: %v", item.WorkKey(), err)
	}
}
