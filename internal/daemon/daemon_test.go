package daemon_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"docket/internal/config"
	"docket/internal/daemon"
	"docket/internal/documents"
	"docket/internal/ratelimit"
	"docket/internal/stage"
	"docket/internal/testsupport"
	"docket/internal/workqueue"
)

type countingHandler struct {
	processed chan string
}

func (countingHandler) Name() string     { return "fetch" }
func (countingHandler) WorkType() string { return documents.WorkTypeFetch }
func (countingHandler) Deferred() bool   { return false }

func (h countingHandler) Process(_ context.Context, doc documents.Document) (documents.Document, error) {
	select {
	case h.processed <- doc.ID:
	default:
	}
	return doc, nil
}

func (countingHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("fetch")
}

func newTestDaemon(t *testing.T, cfg *config.Config, handler stage.Handler) (*daemon.Daemon, *workqueue.Store[documents.Document]) {
	t.Helper()

	db := testsupport.MustOpenDB(t, cfg)
	queue := workqueue.NewStore[documents.Document](db)
	limiter := ratelimit.NewLimiter(cfg, ratelimit.NewMemoryBackend(), nil)
	stages := []*stage.QueueStage{stage.New(handler, queue, nil)}

	d, err := daemon.New(cfg, db, queue, limiter, nil, stages)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, queue
}

func waitForPass(t *testing.T, d *daemon.Daemon) daemon.Status {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status := d.Status(context.Background())
		if status.LastSummary != nil {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("daemon never completed a pass")
	return daemon.Status{}
}

func TestDaemonRunsInitialPassOverBacklog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := countingHandler{processed: make(chan string, 8)}
	d, queue := newTestDaemon(t, cfg, handler)

	for _, id := range []string{"courts/1", "courts/2"} {
		testsupport.MustEnqueue[documents.Document](t, queue,
			documents.Document{ID: id, SourceID: "courts", URL: "https://courts.example.gov/" + id},
			workqueue.Meta{WorkType: documents.WorkTypeFetch},
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	status := waitForPass(t, d)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	totals := status.LastSummary.Stages["fetch"]
	if totals.Succeeded != 2 {
		t.Fatalf("expected 2 successes, got %+v", totals)
	}
	if status.Queue.Completed != 2 {
		t.Fatalf("expected 2 completed items, got %+v", status.Queue)
	}

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("expected daemon stopped")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newTestDaemon(t, cfg, countingHandler{processed: make(chan string, 1)})
	second, _ := newTestDaemon(t, cfg, countingHandler{processed: make(chan string, 1)})

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	err := second.Start(ctx)
	if err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDaemonStatusBeforeStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newTestDaemon(t, cfg, countingHandler{processed: make(chan string, 1)})

	status := d.Status(context.Background())
	if status.Running {
		t.Fatal("daemon must not report running before Start")
	}
	if status.Owner == "" {
		t.Fatal("expected claim owner in status")
	}
	if len(status.Stages) != 1 || !status.Stages[0].Ready {
		t.Fatalf("unexpected stage health: %+v", status.Stages)
	}
	if status.LastSummary != nil {
		t.Fatal("no pass has run yet")
	}
}
