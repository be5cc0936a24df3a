package main

import (
	"context"
	"strings"
	"testing"

	"docket/internal/workqueue"
)

func TestQueueStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	seedDocument(t, env, "courts/alpha")
	seedDocument(t, env, "courts/beta")
	failDocument(t, env, "courts/beta")

	out, _, err := runCLI(t, env.configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "fetch")
	requireContains(t, out, "Failed")

	out, _, err = runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "courts/alpha")
	requireContains(t, out, "courts/beta")
	requireContains(t, out, "fetch exploded")

	out, _, err = runCLI(t, env.configPath, "queue", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("queue list --status failed: %v", err)
	}
	requireContains(t, out, "courts/beta")
	if strings.Contains(out, "courts/alpha") {
		t.Fatalf("available item leaked into failed listing:\n%s", out)
	}
}

func TestQueueListRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env.configPath, "queue", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to error")
	}
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	seedDocument(t, env, "courts/alpha")
	failDocument(t, env, "courts/alpha")

	out, _, err := runCLI(t, env.configPath, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Requeued 1 failed item")

	count, err := env.queue.Count(context.Background(), workqueue.Filter{WorkType: "fetch"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected retried item to be claimable, got %d", count)
	}

	failDocument(t, env, "courts/alpha")
	out, _, err = runCLI(t, env.configPath, "queue", "clear", "--failed")
	if err != nil {
		t.Fatalf("queue clear --failed: %v", err)
	}
	requireContains(t, out, "Removed 1 item")

	out, _, err = runCLI(t, env.configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueHealthReportsDatabase(t *testing.T) {
	env := setupCLITestEnv(t)
	seedDocument(t, env, "courts/alpha")

	out, _, err := runCLI(t, env.configPath, "queue", "health")
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Work Database")
	requireContains(t, out, "[OK]")
}
