package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"docket/internal/config"
	"docket/internal/deps"
	"docket/internal/discovery"
	"docket/internal/documents"
	"docket/internal/logging"
	"docket/internal/ocr"
	"docket/internal/ratelimit"
	"docket/internal/stage"
	"docket/internal/workqueue"
)

// Deps holds the wired runtime dependencies shared by the daemon and the
// one-shot CLI path.
type Deps struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *workqueue.DB
	Queue   *workqueue.Store[documents.Document]
	Backend ratelimit.Backend
	Limiter *ratelimit.Limiter
	Stages  []*stage.QueueStage
}

// Close releases the database and rate limiter state.
func (d *Deps) Close() error {
	var firstErr error
	if d.Backend != nil {
		if err := d.Backend.Close(); err != nil {
			firstErr = err
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildDeps opens the work database, selects the configured rate limiter
// backend, and assembles the fetch and OCR stages.
func BuildDeps(cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	for _, status := range deps.CheckBinaries(deps.DefaultRequirements()) {
		if status.Available {
			continue
		}
		if status.Optional {
			logger.Warn("optional tool missing",
				logging.String("tool", status.Command),
				logging.String("detail", status.Detail),
			)
			continue
		}
		logger.Warn("required tool missing, its stage will report unhealthy",
			logging.String("tool", status.Command),
			logging.String("detail", status.Detail),
		)
	}

	db, err := workqueue.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open work database: %w", err)
	}
	queue := workqueue.NewStore[documents.Document](db)

	var backend ratelimit.Backend
	switch cfg.RateLimit.Backend {
	case "sqlite":
		backend, err = ratelimit.OpenSQLite(cfg)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open rate limit state: %w", err)
		}
	default:
		backend = ratelimit.NewMemoryBackend()
	}
	limiter := ratelimit.NewLimiter(cfg, backend, logger)

	// The fetcher paces itself against the limiter per request, so the
	// fetch stage carries no limiter of its own.
	fetcher := discovery.NewHTTPFetcher(cfg, limiter, logger)
	fetchStage := stage.New(discovery.NewFetchHandler(fetcher), queue, logger,
		stage.WithNext(documents.WorkTypeOCR),
	)
	engine := ocr.NewTesseractEngine(cfg.OCR.TesseractCommand, cfg.OCR.Languages...)
	deduper := documents.NewDeduper(0)
	ocrStage := stage.New(ocr.NewHandler(cfg, engine, deduper), queue, logger)

	return &Deps{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Queue:   queue,
		Backend: backend,
		Limiter: limiter,
		Stages:  []*stage.QueueStage{fetchStage, ocrStage},
	}, nil
}

// Run wires dependencies, starts the daemon, and blocks until the context
// is canceled.
func Run(ctx context.Context, cfg *config.Config, sources ...discovery.Source) error {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	built, err := BuildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Close(); err != nil {
			logger.Warn("shutdown cleanup failed", logging.Error(err))
		}
	}()

	d, err := New(cfg, built.DB, built.Queue, built.Limiter, logger, built.Stages, sources...)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	d.Stop()
	return nil
}
