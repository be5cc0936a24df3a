package daemon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docket/internal/daemon"
	"docket/internal/documents"
	"docket/internal/ratelimit"
	"docket/internal/testsupport"
	"docket/internal/workqueue"
)

func TestBuildDepsWiresFetchAndOCRStages(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRateLimitBackend("memory"))

	deps, err := daemon.BuildDeps(cfg, nil)
	if err != nil {
		t.Fatalf("BuildDeps: %v", err)
	}
	defer deps.Close()

	if len(deps.Stages) != 2 {
		t.Fatalf("expected fetch and ocr stages, got %d", len(deps.Stages))
	}
	if deps.Stages[0].Name() != "fetch" || deps.Stages[1].Name() != "ocr" {
		t.Fatalf("unexpected stage order: %s, %s", deps.Stages[0].Name(), deps.Stages[1].Name())
	}
	if _, ok := deps.Backend.(*ratelimit.MemoryBackend); !ok {
		t.Fatalf("expected memory backend, got %T", deps.Backend)
	}
}

func TestBuildDepsDefaultsToSQLiteBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	deps, err := daemon.BuildDeps(cfg, nil)
	if err != nil {
		t.Fatalf("BuildDeps: %v", err)
	}
	defer deps.Close()

	if _, ok := deps.Backend.(*ratelimit.MemoryBackend); ok {
		t.Fatal("expected the durable backend by default")
	}
}

func TestFetchStagePaysPacingDelayOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 minutes"))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithRateLimitBackend("memory"))
	// The bucket holds one immediate token and refills at the minimum
	// interval. A single fetch must ride that first token; a second pacing
	// gate on the same path would drain the bucket twice and stall here.
	cfg.RateLimit.BaseDelayMS = 1
	cfg.RateLimit.MinDelayMS = 500

	deps, err := daemon.BuildDeps(cfg, nil)
	if err != nil {
		t.Fatalf("BuildDeps: %v", err)
	}
	defer deps.Close()

	testsupport.MustEnqueue[documents.Document](t, deps.Queue,
		documents.Document{ID: "courts/1", SourceID: "courts", Title: "Minutes", URL: server.URL + "/minutes.pdf"},
		workqueue.Meta{WorkType: documents.WorkTypeFetch},
	)

	start := time.Now()
	result, err := deps.Stages[0].RunChunk(context.Background(), 1, nil)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("RunChunk: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected the fetch to succeed, got %+v", result)
	}
	if elapsed >= 400*time.Millisecond {
		t.Fatalf("fetch waited on the limiter more than once: %v elapsed", elapsed)
	}
}
