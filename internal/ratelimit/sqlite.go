package ratelimit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"docket/internal/config"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rate_domains (
    domain TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at TEXT NOT NULL
);
`

// mutateAttempts bounds the optimistic-concurrency retry loop in Mutate.
// Every worker touching one domain races on the same row, so the bound is
// generous; lost races back off briefly before re-reading.
const mutateAttempts = 64

// SQLiteBackend persists domain state in a SQLite database so every worker
// process on the host throttles against the same counters. Updates use
// optimistic concurrency: each row carries a version, and a mutation only
// commits if the version it read is still current.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens or creates the shared rate limiter database under the
// configured data directory.
func OpenSQLite(cfg *config.Config) (*SQLiteBackend, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	dbPath := filepath.Join(cfg.Paths.DataDir, "ratelimit.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ratelimit db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ratelimit schema: %w", err)
	}
	return &SQLiteBackend{db: db, path: dbPath, now: time.Now}, nil
}

var _ Backend = (*SQLiteBackend)(nil)

// State returns the current state for a domain.
func (b *SQLiteBackend) State(ctx context.Context, domain string) (DomainState, error) {
	state, _, err := b.load(ctx, domain)
	return state, err
}

func (b *SQLiteBackend) load(ctx context.Context, domain string) (DomainState, int64, error) {
	var payload string
	var version int64
	err := b.db.QueryRowContext(ctx,
		`SELECT state, version FROM rate_domains WHERE domain = ?`, domain,
	).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return DomainState{Domain: domain}, 0, nil
	}
	if err != nil {
		return DomainState{}, 0, fmt.Errorf("load domain state: %w", err)
	}
	var state DomainState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return DomainState{}, 0, fmt.Errorf("decode domain state: %w", err)
	}
	state.Domain = domain
	return state, version, nil
}

// Mutate applies fn as an optimistic read-modify-write. Lost races retry
// from a fresh read so concurrent mutations never overwrite each other.
func (b *SQLiteBackend) Mutate(ctx context.Context, domain string, fn func(*DomainState)) (DomainState, error) {
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		state, version, err := b.load(ctx, domain)
		if err != nil {
			return DomainState{}, err
		}
		fn(&state)
		state.Domain = domain
		state.LastUpdated = b.now().UTC()

		payload, err := json.Marshal(state)
		if err != nil {
			return DomainState{}, fmt.Errorf("encode domain state: %w", err)
		}
		nowStr := state.LastUpdated.Format(time.RFC3339Nano)

		if version == 0 {
			res, err := b.db.ExecContext(ctx,
				`INSERT INTO rate_domains (domain, state, version, updated_at)
                 VALUES (?, ?, 1, ?)
                 ON CONFLICT (domain) DO NOTHING`,
				domain, string(payload), nowStr,
			)
			if err != nil {
				return DomainState{}, fmt.Errorf("insert domain state: %w", err)
			}
			if affected, _ := res.RowsAffected(); affected == 1 {
				return state, nil
			}
			// Someone created the row first; retry against it.
			continue
		}

		res, err := b.db.ExecContext(ctx,
			`UPDATE rate_domains SET state = ?, version = version + 1, updated_at = ?
             WHERE domain = ? AND version = ?`,
			string(payload), nowStr, domain, version,
		)
		if err != nil {
			return DomainState{}, fmt.Errorf("update domain state: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return DomainState{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return DomainState{}, fmt.Errorf("mutate domain %s: gave up after %d contended attempts", domain, mutateAttempts)
}

// All returns the state of every known domain ordered by name.
func (b *SQLiteBackend) All(ctx context.Context) ([]DomainState, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT domain, state FROM rate_domains ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("list domain state: %w", err)
	}
	defer rows.Close()

	var states []DomainState
	for rows.Next() {
		var domain, payload string
		if err := rows.Scan(&domain, &payload); err != nil {
			return nil, fmt.Errorf("scan domain state: %w", err)
		}
		var state DomainState
		if err := json.Unmarshal([]byte(payload), &state); err != nil {
			return nil, fmt.Errorf("decode domain state: %w", err)
		}
		state.Domain = domain
		states = append(states, state)
	}
	return states, rows.Err()
}

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
