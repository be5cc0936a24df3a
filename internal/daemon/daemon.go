package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"docket/internal/config"
	"docket/internal/discovery"
	"docket/internal/documents"
	"docket/internal/logging"
	"docket/internal/pipeline"
	"docket/internal/ratelimit"
	"docket/internal/stage"
	"docket/internal/workqueue"
)

// Daemon coordinates scheduled pipeline passes and enforces single-instance
// execution via a lock file.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *workqueue.DB
	queue   workqueue.Queue[documents.Document]
	limiter *ratelimit.Limiter
	stages  []*stage.QueueStage
	sources []discovery.Source

	lockPath string
	lock     *flock.Flock

	cron   *cron.Cron
	runner *pipeline.Runner
	sink   *pipeline.Sink

	running  atomic.Bool
	failures atomic.Int64
	ctx      context.Context
	cancel   context.CancelFunc
	passWG   sync.WaitGroup
	drainWG  sync.WaitGroup

	mu          sync.Mutex
	lastPassAt  time.Time
	lastSummary *pipeline.Summary
	retryTimer  *time.Timer
}

// Status is the daemon's runtime snapshot for the CLI.
type Status struct {
	Running      bool
	LockFilePath string
	Owner        string
	Queue        workqueue.HealthSummary
	Stages       []stage.Health
	RateLimits   []ratelimit.DomainState
	LastPassAt   time.Time
	LastSummary  *pipeline.Summary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, db *workqueue.DB, queue workqueue.Queue[documents.Document], limiter *ratelimit.Limiter, logger *slog.Logger, stages []*stage.QueueStage, sources ...discovery.Source) (*Daemon, error) {
	if cfg == nil || db == nil || queue == nil || limiter == nil {
		return nil, errors.New("daemon requires config, database, queue, and limiter")
	}
	if len(stages) == 0 {
		return nil, errors.New("daemon requires at least one stage")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "docketd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		db:       db,
		queue:    queue,
		limiter:  limiter,
		stages:   stages,
		sources:  sources,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, builds the runner, and begins scheduled
// passes. The first pass runs immediately.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docket daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.sink = pipeline.NewSink(
		d.cfg.Pipeline.EventBuffer,
		time.Duration(d.cfg.Pipeline.EventSendTimeoutMS)*time.Millisecond,
		d.logger,
	)
	pipelineStages := make([]pipeline.Stage, len(d.stages))
	for i, s := range d.stages {
		pipelineStages[i] = s
	}
	runner, err := pipeline.NewRunner(d.cfg, d.sink, d.logger, pipelineStages...)
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		return err
	}
	d.runner = runner

	d.drainWG.Add(1)
	go d.drainEvents()

	// Overlapping passes are skipped, not queued: a pass that outlives its
	// schedule slot simply owns the next slot too.
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	if _, err := scheduler.AddFunc(d.cfg.Daemon.PassSchedule, func() { d.runPass() }); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		return fmt.Errorf("schedule passes: %w", err)
	}
	d.cron = scheduler
	d.cron.Start()

	d.running.Store(true)
	d.logger.Info("docket daemon started",
		logging.String("lock", d.lockPath),
		logging.String("schedule", d.cfg.Daemon.PassSchedule),
	)

	d.passWG.Add(1)
	go func() {
		defer d.passWG.Done()
		d.runPass()
	}()
	return nil
}

// Stop ends scheduling, lets the in-flight chunk finish, and releases the
// lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cron != nil {
		stopCtx := d.cron.Stop()
		<-stopCtx.Done()
	}
	d.mu.Lock()
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	d.mu.Unlock()

	if d.runner != nil {
		d.runner.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.passWG.Wait()
	if d.sink != nil {
		d.sink.Close()
	}
	d.drainWG.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("docket daemon stopped")
}

// Close stops the daemon and closes the work database.
func (d *Daemon) Close() error {
	d.Stop()
	return d.db.Close()
}

// runPass executes one full pipeline pass: reclaim sweep, discovery, then
// the runner. Failed passes retry with bounded backoff ahead of the next
// scheduled slot.
func (d *Daemon) runPass() {
	ctx := d.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}
	start := time.Now()

	if reclaimed, err := d.db.ReclaimExpired(ctx); err != nil {
		d.logger.Warn("reclaim sweep failed", logging.Error(err))
	} else if reclaimed > 0 {
		d.logger.Info("reclaimed expired claims", logging.Int64("count", reclaimed))
	}

	if len(d.sources) > 0 {
		if offered, err := discovery.EnqueueAll(ctx, d.queue, d.logger, d.sources...); err != nil {
			d.logger.Warn("discovery failed", logging.Error(err))
		} else if offered > 0 {
			d.logger.Debug("discovery complete", logging.Int("offered", offered))
		}
	}

	summary, err := d.runner.Run(ctx)
	d.mu.Lock()
	d.lastPassAt = start
	d.lastSummary = &summary
	d.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		failures := d.failures.Add(1)
		wait := ratelimit.Backoff(int(failures-1),
			time.Duration(d.cfg.Daemon.ErrorRetryInterval)*time.Second,
			10*time.Duration(d.cfg.Daemon.ErrorRetryInterval)*time.Second,
		)
		d.logger.Error("pipeline pass failed",
			logging.Error(err),
			logging.Duration("retry_in", wait),
		)
		d.scheduleRetry(wait)
		return
	}
	d.failures.Store(0)
	d.logger.Info("pipeline pass complete",
		logging.Int("processed", summary.Processed()),
		logging.Duration("duration", summary.Duration),
		logging.Int64("events_dropped", summary.Dropped),
	)
}

func (d *Daemon) scheduleRetry(wait time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.retryTimer != nil {
		d.retryTimer.Stop()
	}
	d.retryTimer = time.AfterFunc(wait, func() {
		if d.ctx != nil && d.ctx.Err() == nil {
			d.runPass()
		}
	})
}

// drainEvents logs pipeline events at debug level until the sink closes.
func (d *Daemon) drainEvents() {
	defer d.drainWG.Done()
	for event := range d.sink.Events() {
		d.logger.Debug("pipeline event",
			logging.String(logging.FieldEventType, string(event.Type)),
			logging.String(logging.FieldStage, event.Stage),
			logging.String(logging.FieldItemKey, event.ItemKey),
		)
	}
}

// Status returns the daemon's runtime snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		Owner:        d.db.Owner(),
	}
	if health, err := d.db.Health(ctx); err == nil {
		status.Queue = health
	}
	for _, s := range d.stages {
		status.Stages = append(status.Stages, s.Health(ctx))
	}
	if states, err := d.limiter.States(ctx); err == nil {
		status.RateLimits = states
	}
	d.mu.Lock()
	status.LastPassAt = d.lastPassAt
	status.LastSummary = d.lastSummary
	d.mu.Unlock()
	return status
}
