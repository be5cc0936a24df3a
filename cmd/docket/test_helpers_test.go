package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"docket/internal/config"
	"docket/internal/documents"
	"docket/internal/testsupport"
	"docket/internal/workqueue"
)

type cliTestEnv struct {
	cfg        *config.Config
	queue      *workqueue.Store[documents.Document]
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.RateLimit.Backend = "memory"

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	db := testsupport.MustOpenDB(t, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		queue:      workqueue.NewStore[documents.Document](db),
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func seedDocument(t *testing.T, env *cliTestEnv, id string) {
	t.Helper()
	testsupport.MustEnqueue[documents.Document](t, env.queue,
		documents.Document{ID: id, SourceID: "courts", URL: "https://courts.example.gov/" + id},
		workqueue.Meta{WorkType: documents.WorkTypeFetch},
	)
}

func failDocument(t *testing.T, env *cliTestEnv, id string) {
	t.Helper()
	handle, err := env.queue.Claim(context.Background(),
		documents.Document{ID: id},
		workqueue.Filter{WorkType: documents.WorkTypeFetch},
	)
	if err != nil {
		t.Fatalf("claim %s: %v", id, err)
	}
	if err := handle.Fail(context.Background(), errors.New("fetch exploded"), false); err != nil {
		t.Fatalf("fail %s: %v", id, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
