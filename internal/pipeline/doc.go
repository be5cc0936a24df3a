// Package pipeline executes ordered stages over the work backlog.
//
// A stage owns one work type: it fetches claimable items, claims them, and
// processes them in chunks. The runner sequences stages under one of two
// topologies. Wide drains each stage completely before moving to the next,
// which maximizes claim locality for bulk backfills. Deep advances one
// chunk through every stage per round and hands deferred stages (slow work
// such as OCR) to a bounded worker pool, which keeps fast stages flowing
// while slow ones catch up.
//
// Progress is reported through a bounded event sink. Event delivery is best
// effort: a full sink drops events after a short timeout rather than ever
// blocking the pipeline.
package pipeline
