package discovery

import (
	"context"
	"log/slog"

	"docket/internal/documents"
	"docket/internal/logging"
	"docket/internal/workqueue"
)

// Source lists documents available at one remote registry or index.
type Source interface {
	// ID is the stable source identifier recorded on every document.
	ID() string

	// Discover returns the documents currently visible at the source.
	Discover(ctx context.Context) ([]documents.Document, error)
}

// StaticSource serves a fixed document list, for tests and for sources
// whose catalog is configured rather than crawled.
type StaticSource struct {
	SourceID string
	Docs     []documents.Document
}

func (s StaticSource) ID() string { return s.SourceID }

func (s StaticSource) Discover(context.Context) ([]documents.Document, error) {
	docs := make([]documents.Document, len(s.Docs))
	copy(docs, s.Docs)
	for i := range docs {
		docs[i].SourceID = s.SourceID
	}
	return docs, nil
}

// EnqueueAll discovers every source and enqueues the results as fetch work.
// Re-discovered documents are no-ops at the queue. It returns how many
// documents were offered to the queue; a failing source is logged and
// skipped so one broken registry cannot stall the rest.
func EnqueueAll(ctx context.Context, queue workqueue.Queue[documents.Document], logger *slog.Logger, sources ...Source) (int, error) {
	log := logging.NewComponentLogger(logger, "discovery")
	offered := 0
	for _, source := range sources {
		docs, err := source.Discover(ctx)
		if err != nil {
			log.Warn("source discovery failed",
				logging.String("source_id", source.ID()),
				logging.Error(err),
			)
			continue
		}
		for _, doc := range docs {
			meta := workqueue.Meta{
				WorkType: documents.WorkTypeFetch,
				SourceID: doc.SourceID,
				MimeType: doc.MimeType,
			}
			if err := queue.Enqueue(ctx, doc, meta); err != nil {
				return offered, err
			}
			offered++
		}
	}
	return offered, nil
}
