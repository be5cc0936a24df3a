package pipeline

import "context"

// ChunkResult reports what one RunChunk call accomplished.
type ChunkResult struct {
	// Succeeded counts items processed and completed.
	Succeeded int
	// Failed counts items whose processing failed; their claims were failed
	// and they will retry later.
	Failed int
	// Skipped counts items another worker claimed first. Skips are expected
	// contention, not errors.
	Skipped int
	// HasMore reports whether the stage believes more claimable work remains.
	HasMore bool
}

// processed is the number of items the chunk consumed from the caller's
// item budget. Skips count: a skipped item was claimed by someone else
// this chunk, and refunding it would let a contended stage spin past the
// pass limit.
func (r ChunkResult) processed() int {
	return r.Succeeded + r.Failed + r.Skipped
}

// Stage is one unit of pipeline work, bound to a single work type.
type Stage interface {
	// Name identifies the stage in events, logs, and summaries.
	Name() string

	// Deferred marks slow stages that the deep topology runs on the worker
	// pool instead of the chunk round.
	Deferred() bool

	// Count estimates the remaining claimable backlog for the stage.
	Count(ctx context.Context) (int64, error)

	// RunChunk claims and processes up to limit items, emitting per-item
	// events to the sink. It returns what happened plus whether more work
	// remains. Errors abort only the current chunk.
	RunChunk(ctx context.Context, limit int, sink *Sink) (ChunkResult, error)
}
