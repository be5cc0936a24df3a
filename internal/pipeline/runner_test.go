package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docket/internal/config"
	"docket/internal/pipeline"
)

// fakeStage drains a counted backlog, optionally slowly or with errors.
type fakeStage struct {
	name     string
	deferred bool
	perChunk time.Duration
	failNext int
	skipAll  bool
	onChunk  func()

	mu      sync.Mutex
	backlog int
	chunks  int
}

func (s *fakeStage) Name() string   { return s.name }
func (s *fakeStage) Deferred() bool { return s.deferred }

func (s *fakeStage) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.backlog), nil
}

func (s *fakeStage) RunChunk(ctx context.Context, limit int, sink *pipeline.Sink) (pipeline.ChunkResult, error) {
	if s.onChunk != nil {
		s.onChunk()
	}
	if s.perChunk > 0 {
		select {
		case <-ctx.Done():
			return pipeline.ChunkResult{}, ctx.Err()
		case <-time.After(s.perChunk):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks++
	if s.failNext > 0 {
		s.failNext--
		return pipeline.ChunkResult{HasMore: s.backlog > 0}, errors.New("chunk blew up")
	}
	if s.skipAll {
		// Every claim lost to another worker; backlog stays put.
		return pipeline.ChunkResult{Skipped: limit, HasMore: true}, nil
	}
	take := limit
	if take > s.backlog {
		take = s.backlog
	}
	s.backlog -= take
	for i := 0; i < take; i++ {
		sink.Publish(pipeline.Event{Type: pipeline.EventItemCompleted, Stage: s.name})
	}
	return pipeline.ChunkResult{Succeeded: take, HasMore: s.backlog > 0}, nil
}

func (s *fakeStage) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

func testConfig(strategy string, chunkSize, itemLimit int) *config.Config {
	cfg := config.Default()
	cfg.Pipeline.Strategy = strategy
	cfg.Pipeline.ChunkSize = chunkSize
	cfg.Pipeline.ItemLimit = itemLimit
	cfg.Pipeline.DeferredWorkers = 4
	return &cfg
}

func mustRunner(t *testing.T, cfg *config.Config, sink *pipeline.Sink, stages ...pipeline.Stage) *pipeline.Runner {
	t.Helper()
	runner, err := pipeline.NewRunner(cfg, sink, nil, stages...)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func TestWideDrainsStagesInOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	note := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	first := &fakeStage{name: "fetch", backlog: 5, onChunk: note("fetch")}
	second := &fakeStage{name: "extract", backlog: 5, onChunk: note("extract")}

	runner := mustRunner(t, testConfig("wide", 3, 0), nil, first, second)
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Stages["fetch"].Succeeded != 5 || summary.Stages["extract"].Succeeded != 5 {
		t.Fatalf("unexpected totals: %+v", summary.Stages)
	}
	// Wide runs every fetch chunk before any extract chunk.
	sawExtract := false
	for _, name := range order {
		if name == "extract" {
			sawExtract = true
		} else if sawExtract {
			t.Fatalf("fetch chunk after extract started: %v", order)
		}
	}
}

func TestRunnerHonorsItemLimit(t *testing.T) {
	stage := &fakeStage{name: "fetch", backlog: 100}
	runner := mustRunner(t, testConfig("wide", 10, 7), nil, stage)
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := summary.Processed(); got != 7 {
		t.Fatalf("expected item limit of 7 honored, got %d", got)
	}
}

func TestSkippedItemsConsumeItemLimit(t *testing.T) {
	// A stage losing every claim to another worker reports progress only
	// through Skipped. Those items still spend the pass budget; otherwise
	// the loop would keep reissuing chunks forever.
	contended := &fakeStage{name: "fetch", backlog: 100, skipAll: true}
	runner := mustRunner(t, testConfig("wide", 2, 6), nil, contended)

	done := make(chan pipeline.Summary, 1)
	go func() {
		summary, err := runner.Run(context.Background())
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		done <- summary
	}()

	var summary pipeline.Summary
	select {
	case summary = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not terminate with an all-skipped stage")
	}

	if summary.Stages["fetch"].Skipped != 6 {
		t.Fatalf("expected 6 skipped items, got %+v", summary.Stages["fetch"])
	}
	if got := contended.chunkCount(); got != 3 {
		t.Fatalf("expected exactly 3 chunks for limit 6 at size 2, got %d", got)
	}
}

func TestChunkSucceedsAfterEarlierChunkError(t *testing.T) {
	stage := &fakeStage{name: "fetch", backlog: 5, failNext: 1}
	runner := mustRunner(t, testConfig("wide", 3, 0), nil, stage)
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	totals := summary.Stages["fetch"]
	if totals.Succeeded != 5 {
		t.Fatalf("stage should drain despite one bad chunk: %+v", totals)
	}
	if totals.Errors != 1 {
		t.Fatalf("expected 1 chunk error recorded, got %+v", totals)
	}
}

func TestStageStopsAfterRepeatedChunkErrors(t *testing.T) {
	broken := &fakeStage{name: "fetch", backlog: 50, failNext: 1 << 20}
	healthy := &fakeStage{name: "extract", backlog: 2}
	runner := mustRunner(t, testConfig("wide", 5, 0), nil, broken, healthy)
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Stages["fetch"].Errors != 3 {
		t.Fatalf("expected the broken stage to stop after 3 chunk errors, got %+v", summary.Stages["fetch"])
	}
	if summary.Stages["extract"].Succeeded != 2 {
		t.Fatalf("later stages must still run: %+v", summary.Stages["extract"])
	}
}

func TestDeepDecouplesDeferredThroughput(t *testing.T) {
	// The deferred stage needs 9 slow chunks; with 4 pool workers they
	// overlap, so the pass finishes well under the serial time.
	fast := &fakeStage{name: "fetch", backlog: 9}
	slow := &fakeStage{name: "ocr", deferred: true, backlog: 9, perChunk: 50 * time.Millisecond}

	runner := mustRunner(t, testConfig("deep", 1, 0), nil, fast, slow)
	start := time.Now()
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	if summary.Stages["fetch"].Succeeded != 9 || summary.Stages["ocr"].Succeeded != 9 {
		t.Fatalf("unexpected totals: %+v", summary.Stages)
	}
	serial := 9 * 50 * time.Millisecond
	if elapsed >= serial {
		t.Fatalf("deferred chunks did not overlap: %v elapsed vs %v serial", elapsed, serial)
	}
}

func TestDeepInterleavesStages(t *testing.T) {
	first := &fakeStage{name: "fetch", backlog: 4}
	second := &fakeStage{name: "extract", backlog: 4}
	runner := mustRunner(t, testConfig("deep", 2, 0), nil, first, second)
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Stages["fetch"].Succeeded != 4 || summary.Stages["extract"].Succeeded != 4 {
		t.Fatalf("unexpected totals: %+v", summary.Stages)
	}
	if first.chunkCount() != 2 || second.chunkCount() != 2 {
		t.Fatalf("expected 2 chunks per stage, got %d/%d", first.chunkCount(), second.chunkCount())
	}
}

func TestStopEndsPassCleanly(t *testing.T) {
	var runner *pipeline.Runner
	stage := &fakeStage{name: "fetch", backlog: 100}
	stage.onChunk = func() { runner.Stop() }
	runner = mustRunner(t, testConfig("wide", 5, 0), nil, stage)

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run after Stop should not error: %v", err)
	}
	// The first chunk finishes; no further chunk starts.
	if stage.chunkCount() != 1 {
		t.Fatalf("expected exactly 1 chunk before stop, got %d", stage.chunkCount())
	}
	if summary.Stages["fetch"].Succeeded != 5 {
		t.Fatalf("in-flight chunk should finish: %+v", summary.Stages)
	}
}

func TestCanceledContextAbortsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stage := &fakeStage{name: "fetch", backlog: 10}
	runner := mustRunner(t, testConfig("wide", 5, 0), nil, stage)
	if _, err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stage.chunkCount() != 0 {
		t.Fatalf("no chunk should start after cancellation, got %d", stage.chunkCount())
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := pipeline.ParseStrategy(" Wide "); err != nil || s != pipeline.StrategyWide {
		t.Fatalf("ParseStrategy wide: %v %v", s, err)
	}
	if s, err := pipeline.ParseStrategy("deep"); err != nil || s != pipeline.StrategyDeep {
		t.Fatalf("ParseStrategy deep: %v %v", s, err)
	}
	if _, err := pipeline.ParseStrategy("sideways"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
