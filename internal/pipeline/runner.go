package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"docket/internal/config"
	"docket/internal/logging"
)

// Strategy selects how the runner sequences stages.
type Strategy string

const (
	// StrategyWide drains each stage completely before starting the next.
	StrategyWide Strategy = "wide"
	// StrategyDeep advances one chunk through every stage per round,
	// running deferred stages on the worker pool.
	StrategyDeep Strategy = "deep"
)

// ParseStrategy converts a config string into a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyWide:
		return StrategyWide, nil
	case StrategyDeep:
		return StrategyDeep, nil
	}
	return "", fmt.Errorf("unknown pipeline strategy %q", value)
}

// maxChunkErrors stops a stage for the pass once this many chunks in a row
// error out, so a broken backend cannot hot-loop the runner.
const maxChunkErrors = 3

// StageTotals accumulates chunk results for one stage across a pass.
type StageTotals struct {
	Succeeded int
	Failed    int
	Skipped   int
	Errors    int
}

// Summary reports what one pipeline pass accomplished.
type Summary struct {
	Stages   map[string]StageTotals
	Dropped  int64
	Duration time.Duration
}

// Processed returns the total number of items the pass consumed.
func (s Summary) Processed() int {
	total := 0
	for _, totals := range s.Stages {
		total += totals.Succeeded + totals.Failed
	}
	return total
}

// Runner executes a list of stages as a single pass over the backlog.
type Runner struct {
	stages          []Stage
	strategy        Strategy
	chunkSize       int
	itemLimit       int
	deferredWorkers int
	sink            *Sink
	logger          *slog.Logger
	stopped         atomic.Bool

	mu     sync.Mutex
	totals map[string]StageTotals
}

// NewRunner builds a runner from configuration. Stages execute in the
// given order; ownership of the sink stays with the caller.
func NewRunner(cfg *config.Config, sink *Sink, logger *slog.Logger, stages ...Stage) (*Runner, error) {
	strategy, err := ParseStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, errors.New("pipeline: at least one stage is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Pipeline.DeferredWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		stages:          stages,
		strategy:        strategy,
		chunkSize:       cfg.Pipeline.ChunkSize,
		itemLimit:       cfg.Pipeline.ItemLimit,
		deferredWorkers: workers,
		sink:            sink,
		logger:          logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Stop requests a graceful stop: in-flight chunks finish, and no new chunk
// starts. Cancel the run context instead to abandon in-flight work.
func (r *Runner) Stop() {
	r.stopped.Store(true)
}

// Run executes one pass and returns its summary. The pass ends when every
// stage is drained, the item limit is reached, Stop was called, or ctx is
// canceled.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	r.stopped.Store(false)
	r.mu.Lock()
	r.totals = make(map[string]StageTotals, len(r.stages))
	r.mu.Unlock()

	remaining := newBudget(r.itemLimit)

	var err error
	switch r.strategy {
	case StrategyDeep:
		err = r.runDeep(ctx, remaining)
	default:
		err = r.runWide(ctx, remaining)
	}
	if errors.Is(err, errStopRequested) {
		// A requested stop is a clean end of pass, not a failure.
		err = nil
	}

	summary := Summary{
		Stages:   r.snapshotTotals(),
		Duration: time.Since(start),
	}
	if r.sink != nil {
		summary.Dropped = r.sink.Dropped()
	}
	return summary, err
}

// runWide drains stages one at a time in order.
func (r *Runner) runWide(ctx context.Context, remaining *budget) error {
	for _, stage := range r.stages {
		if err := r.checkStop(ctx); err != nil || remaining.exhausted() {
			return err
		}
		r.publish(Event{Type: EventStageStarted, Stage: stage.Name()})
		errCount := 0
		for {
			if err := r.checkStop(ctx); err != nil {
				return err
			}
			limit := remaining.take(r.chunkSize)
			if limit == 0 {
				break
			}
			result, err := stage.RunChunk(ctx, limit, r.sink)
			remaining.refund(limit - result.processed())
			r.record(stage.Name(), result, err)
			if err != nil {
				errCount++
				r.logger.Warn("chunk failed",
					logging.String(logging.FieldStage, stage.Name()),
					logging.Error(err),
				)
				if errCount >= maxChunkErrors {
					break
				}
				continue
			}
			errCount = 0
			if !result.HasMore {
				break
			}
		}
		r.publish(Event{Type: EventStageCompleted, Stage: stage.Name()})
	}
	return nil
}

// runDeep advances one chunk through every stage per round. Deferred
// stages run on a bounded pool so slow work never blocks the round.
func (r *Runner) runDeep(ctx context.Context, remaining *budget) error {
	sem := make(chan struct{}, r.deferredWorkers)
	var wg sync.WaitGroup
	defer wg.Wait()

	errCounts := make(map[string]int, len(r.stages))
	exhausted := make(map[string]bool, len(r.stages))
	for _, stage := range r.stages {
		r.publish(Event{Type: EventStageStarted, Stage: stage.Name()})
	}

	for {
		if err := r.checkStop(ctx); err != nil {
			return err
		}
		progressed := false
		for _, stage := range r.stages {
			name := stage.Name()
			if r.stageDone(name, exhausted, errCounts) {
				continue
			}
			if err := r.checkStop(ctx); err != nil {
				return err
			}
			limit := remaining.take(r.chunkSize)
			if limit == 0 {
				break
			}
			progressed = true

			if stage.Deferred() {
				wg.Add(1)
				sem <- struct{}{}
				go func(stage Stage, limit int) {
					defer wg.Done()
					defer func() { <-sem }()
					result, err := stage.RunChunk(ctx, limit, r.sink)
					remaining.refund(limit - result.processed())
					r.record(stage.Name(), result, err)
					r.noteDeep(stage.Name(), result, err, errCounts, exhausted)
				}(stage, limit)
				continue
			}

			result, err := stage.RunChunk(ctx, limit, r.sink)
			remaining.refund(limit - result.processed())
			r.record(name, result, err)
			r.noteDeep(name, result, err, errCounts, exhausted)
		}

		if !progressed || remaining.exhausted() {
			break
		}
		if r.allDone(exhausted, errCounts) {
			break
		}
	}

	wg.Wait()
	for _, stage := range r.stages {
		r.publish(Event{Type: EventStageCompleted, Stage: stage.Name()})
	}
	return nil
}

// noteDeep folds a chunk outcome into the deep loop's bookkeeping. The maps
// are guarded by r.mu because deferred chunks report from pool goroutines.
func (r *Runner) noteDeep(name string, result ChunkResult, err error, errCounts map[string]int, exhausted map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		errCounts[name]++
		r.logger.Warn("chunk failed",
			logging.String(logging.FieldStage, name),
			logging.Error(err),
		)
		return
	}
	errCounts[name] = 0
	if !result.HasMore {
		exhausted[name] = true
	}
}

// stageDone reports whether the stage is drained or error-stopped; the
// bookkeeping maps are shared with deferred pool goroutines.
func (r *Runner) stageDone(name string, exhausted map[string]bool, errCounts map[string]int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return exhausted[name] || errCounts[name] >= maxChunkErrors
}

func (r *Runner) allDone(exhausted map[string]bool, errCounts map[string]int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stage := range r.stages {
		if !exhausted[stage.Name()] && errCounts[stage.Name()] < maxChunkErrors {
			return false
		}
	}
	return true
}

// errStopRequested marks a graceful stop inside the run loops.
var errStopRequested = errors.New("pipeline stop requested")

func (r *Runner) checkStop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.stopped.Load() {
		return errStopRequested
	}
	return nil
}

func (r *Runner) record(name string, result ChunkResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := r.totals[name]
	totals.Succeeded += result.Succeeded
	totals.Failed += result.Failed
	totals.Skipped += result.Skipped
	if err != nil {
		totals.Errors++
	}
	r.totals[name] = totals
}

func (r *Runner) snapshotTotals() map[string]StageTotals {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[string]StageTotals, len(r.totals))
	for name, totals := range r.totals {
		snapshot[name] = totals
	}
	return snapshot
}

func (r *Runner) publish(event Event) {
	if r.sink != nil {
		r.sink.Publish(event)
	}
}

// budget tracks the remaining item allowance for a pass. A zero or negative
// configured limit means unlimited.
type budget struct {
	limited   bool
	remaining atomic.Int64
}

func newBudget(limit int) *budget {
	b := &budget{limited: limit > 0}
	if b.limited {
		b.remaining.Store(int64(limit))
	}
	return b
}

// take reserves up to want items and returns how many were granted.
func (b *budget) take(want int) int {
	if !b.limited {
		return want
	}
	for {
		current := b.remaining.Load()
		if current <= 0 {
			return 0
		}
		granted := int64(want)
		if granted > current {
			granted = current
		}
		if b.remaining.CompareAndSwap(current, current-granted) {
			return int(granted)
		}
	}
}

// refund returns unused reservations to the budget.
func (b *budget) refund(unused int) {
	if b.limited && unused > 0 {
		b.remaining.Add(int64(unused))
	}
}

func (b *budget) exhausted() bool {
	return b.limited && b.remaining.Load() <= 0
}
