package stage

import (
	"context"
	"log/slog"
	"time"

	"docket/internal/documents"
	"docket/internal/logging"
	"docket/internal/pipeline"
	"docket/internal/services"
	"docket/internal/workqueue"
)

// QueueStage adapts a Handler into a pipeline.Stage over the document work
// queue. One instance owns one work type.
type QueueStage struct {
	handler       Handler
	queue         workqueue.Queue[documents.Document]
	next          string
	version       int
	retryInterval time.Duration
	logger        *slog.Logger
}

// Option configures optional QueueStage behavior.
type Option func(*QueueStage)

// WithNext chains the stage: documents it completes are enqueued under the
// given work type.
func WithNext(workType string) Option {
	return func(s *QueueStage) { s.next = workType }
}

// WithVersion scopes the stage's claims to a backlog version.
func WithVersion(version int) Option {
	return func(s *QueueStage) { s.version = version }
}

// WithRetryInterval overrides how long this stage's failures wait before
// retrying.
func WithRetryInterval(interval time.Duration) Option {
	return func(s *QueueStage) { s.retryInterval = interval }
}

// New builds a QueueStage for the handler over the given queue.
func New(handler Handler, queue workqueue.Queue[documents.Document], logger *slog.Logger, opts ...Option) *QueueStage {
	s := &QueueStage{
		handler: handler,
		queue:   queue,
		logger:  logging.NewComponentLogger(logger, handler.Name()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ pipeline.Stage = (*QueueStage)(nil)

// Name implements pipeline.Stage.
func (s *QueueStage) Name() string { return s.handler.Name() }

// Deferred implements pipeline.Stage.
func (s *QueueStage) Deferred() bool { return s.handler.Deferred() }

// Health reports the underlying handler's readiness.
func (s *QueueStage) Health(ctx context.Context) Health {
	return s.handler.HealthCheck(ctx)
}

func (s *QueueStage) filter() workqueue.Filter {
	return workqueue.Filter{
		WorkType:      s.handler.WorkType(),
		Version:       s.version,
		RetryInterval: s.retryInterval,
	}
}

// Count implements pipeline.Stage.
func (s *QueueStage) Count(ctx context.Context) (int64, error) {
	return s.queue.Count(ctx, s.filter())
}

// RunChunk claims and processes up to limit documents. Claim contention is
// a skip, item failures fail the claim, and infrastructure errors abort the
// remainder of the chunk.
func (s *QueueStage) RunChunk(ctx context.Context, limit int, sink *pipeline.Sink) (pipeline.ChunkResult, error) {
	var result pipeline.ChunkResult

	batch, _, err := s.queue.FetchBatch(ctx, s.filter(), limit, "")
	if err != nil {
		return result, err
	}
	// A full batch suggests more claimable work behind it.
	result.HasMore = len(batch) == limit

	for _, doc := range batch {
		itemCtx := services.WithStage(services.WithItemKey(ctx, doc.WorkKey()), s.handler.Name())
		if domain := doc.Domain(); domain != "" {
			itemCtx = services.WithDomain(itemCtx, domain)
		}

		if err := s.processOne(itemCtx, doc, sink, &result); err != nil {
			return result, err
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// processOne runs the full claim lifecycle for one document. A non-nil
// return aborts the chunk; item-level failures are absorbed into result.
func (s *QueueStage) processOne(ctx context.Context, doc documents.Document, sink *pipeline.Sink, result *pipeline.ChunkResult) error {
	log := logging.WithContext(ctx, s.logger)

	sink.Publish(pipeline.Event{Type: pipeline.EventItemStarted, Stage: s.Name(), ItemKey: doc.WorkKey()})

	handle, err := s.queue.Claim(ctx, doc, s.filter())
	switch {
	case workqueue.IsAlreadyClaimed(err), workqueue.IsNotFound(err):
		// Another worker got there first, or the row was cleared under us.
		result.Skipped++
		sink.Publish(pipeline.Event{Type: pipeline.EventItemSkipped, Stage: s.Name(), ItemKey: doc.WorkKey()})
		return nil
	case workqueue.IsTransient(err):
		return err
	case err != nil:
		result.Failed++
		log.Warn("claim failed", logging.Error(err))
		return nil
	}

	updated, err := s.handler.Process(ctx, handle.Item())
	if err != nil {
		result.Failed++
		sink.Publish(pipeline.Event{Type: pipeline.EventItemFailed, Stage: s.Name(), ItemKey: doc.WorkKey(), Error: err.Error()})
		log.Warn("processing failed", logging.Error(err))
		if failErr := handle.Fail(ctx, err, false); failErr != nil {
			log.Warn("claim fail not recorded; claim will expire", logging.Error(failErr))
		}
		return nil
	}

	if s.next != "" {
		meta := workqueue.Meta{
			WorkType: s.next,
			SourceID: updated.SourceID,
			MimeType: updated.MimeType,
			Version:  s.version,
		}
		if err := s.queue.Enqueue(ctx, updated, meta); err != nil {
			// Without the hand-off row the item would silently fall out of
			// the pipeline, so fail the claim and let it retry.
			result.Failed++
			sink.Publish(pipeline.Event{Type: pipeline.EventItemFailed, Stage: s.Name(), ItemKey: doc.WorkKey(), Error: err.Error()})
			if failErr := handle.Fail(ctx, err, false); failErr != nil {
				log.Warn("claim fail not recorded; claim will expire", logging.Error(failErr))
			}
			return nil
		}
	}

	if err := handle.Complete(ctx); err != nil {
		// The work itself is done and persisted; a takeover after claim
		// expiry redoes it harmlessly.
		log.Warn("claim completion not recorded", logging.Error(err))
	}
	result.Succeeded++
	sink.Publish(pipeline.Event{Type: pipeline.EventItemCompleted, Stage: s.Name(), ItemKey: doc.WorkKey()})
	return nil
}
