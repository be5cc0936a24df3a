package main

import (
	"testing"
)

func TestRunCommandWithEmptyBacklog(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "run", "--strategy", "wide", "--limit", "5")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Processed 0 items")
}

func TestRunCommandRejectsUnknownStrategy(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env.configPath, "run", "--strategy", "sideways"); err == nil {
		t.Fatal("expected unknown strategy to error")
	}
}

func TestRateLimitStatusWithMemoryBackend(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "ratelimit", "status")
	if err != nil {
		t.Fatalf("ratelimit status: %v", err)
	}
	requireContains(t, out, "in-memory backend")
}
