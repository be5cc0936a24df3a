package workqueue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"docket/internal/config"
	"docket/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; operators clear the database to adopt the new schema.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// DB wraps the SQLite work database shared by every typed Store. It also
// carries the worker identity used to own claims and the claim-expiry and
// retry windows from configuration.
type DB struct {
	db            *sql.DB
	path          string
	owner         string
	claimExpiry   time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// DBOption configures optional DB behavior.
type DBOption func(*DB)

// WithClock overrides the time source, primarily for tests that need to
// move claims and retry intervals through time without sleeping.
func WithClock(now func() time.Time) DBOption {
	return func(d *DB) {
		if now != nil {
			d.now = now
		}
	}
}

// Open initializes or connects to the work database and verifies its schema.
func Open(cfg *config.Config, logger *slog.Logger, opts ...DBOption) (*DB, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "work.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	wrapped := &DB{
		db:            db,
		path:          dbPath,
		owner:         fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
		claimExpiry:   time.Duration(cfg.WorkQueue.ClaimExpiryMinutes) * time.Minute,
		retryInterval: time.Duration(cfg.WorkQueue.RetryIntervalHours) * time.Hour,
		logger:        logging.NewComponentLogger(logger, "workqueue"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(wrapped)
	}

	if err := wrapped.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return wrapped, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Owner returns the worker identity this process stamps on claims.
func (d *DB) Owner() string { return d.owner }

func (d *DB) initSchema(ctx context.Context) error {
	var tableExists int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return d.createSchema(ctx)
	}

	var version int
	err = d.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'docket queue clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (d *DB) createSchema(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// eligiblePredicate is the single claim predicate every read and claim path
// shares: available, or failed past its retry interval, or claimed past the
// expiry cutoff. Bind order: now, expiry cutoff.
const eligiblePredicate = `(
    status = 'available'
    OR (status = 'failed' AND next_eligible_at IS NOT NULL AND next_eligible_at <= ?)
    OR (status = 'claimed' AND claimed_at IS NOT NULL AND claimed_at <= ?)
)`

func (d *DB) timestamps() (nowStr, cutoffStr string, now time.Time) {
	now = d.now().UTC()
	nowStr = now.Format(time.RFC3339Nano)
	cutoffStr = now.Add(-d.claimExpiry).Format(time.RFC3339Nano)
	return nowStr, cutoffStr, now
}

// ReclaimExpired returns expired claims to the available state. The eligible
// predicate already lets workers steal expired claims, so this sweep exists
// for observability: it surfaces how much work crashed mid-claim.
func (d *DB) ReclaimExpired(ctx context.Context) (int64, error) {
	nowStr, cutoffStr, _ := d.timestamps()
	res, err := d.db.ExecContext(ctx,
		`UPDATE work_items
         SET status = 'available', claim_owner = NULL, claimed_at = NULL, updated_at = ?
         WHERE status = 'claimed' AND claimed_at IS NOT NULL AND claimed_at <= ?`,
		nowStr, cutoffStr,
	)
	if err != nil {
		return 0, classifySQL("reclaim expired", err)
	}
	return res.RowsAffected()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
