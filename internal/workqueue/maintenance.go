package workqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Status is the lifecycle state of a work item row.
type Status string

const (
	StatusAvailable Status = "available"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return []Status{StatusAvailable, StatusClaimed, StatusCompleted, StatusFailed}
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusAvailable, StatusClaimed, StatusCompleted, StatusFailed:
		return normalized, true
	}
	return "", false
}

// ItemRecord is the untyped row view used by maintenance surfaces and the
// CLI, independent of the item payload type.
type ItemRecord struct {
	ID             int64
	WorkType       string
	ItemKey        string
	Version        int
	SourceID       string
	MimeType       string
	Status         Status
	Attempts       int
	ClaimOwner     string
	ClaimedAt      *time.Time
	NextEligibleAt *time.Time
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WorkTypeStat aggregates item counts for one work type.
type WorkTypeStat struct {
	WorkType  string
	Available int
	Claimed   int
	Completed int
	Failed    int
}

// HealthSummary describes aggregated backlog counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Available int
	Claimed   int
	Completed int
	Failed    int
}

// DatabaseHealth captures diagnostic information about the work database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// Stats returns a count of items grouped by status.
func (d *DB) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, classifySQL("stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, classifySQL("stats scan", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// StatsByWorkType returns per-work-type counts ordered by work type.
func (d *DB) StatsByWorkType(ctx context.Context) ([]WorkTypeStat, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT work_type, status, COUNT(1) FROM work_items GROUP BY work_type, status ORDER BY work_type`)
	if err != nil {
		return nil, classifySQL("stats by work type", err)
	}
	defer rows.Close()

	byType := make(map[string]*WorkTypeStat)
	var order []string
	for rows.Next() {
		var workType string
		var status Status
		var count int
		if err := rows.Scan(&workType, &status, &count); err != nil {
			return nil, classifySQL("stats by work type scan", err)
		}
		stat, ok := byType[workType]
		if !ok {
			stat = &WorkTypeStat{WorkType: workType}
			byType[workType] = stat
			order = append(order, workType)
		}
		switch status {
		case StatusAvailable:
			stat.Available = count
		case StatusClaimed:
			stat.Claimed = count
		case StatusCompleted:
			stat.Completed = count
		case StatusFailed:
			stat.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats := make([]WorkTypeStat, 0, len(order))
	for _, workType := range order {
		stats = append(stats, *byType[workType])
	}
	return stats, nil
}

// Health aggregates backlog state for diagnostic output.
func (d *DB) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := d.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusAvailable:
			health.Available += count
		case StatusClaimed:
			health.Claimed += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the work database.
func (d *DB) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: d.path}

	if d.path == "" {
		return health, errors.New("work database path is unknown")
	}
	info, err := os.Stat(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat work database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("work database path %q is a directory", d.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping work database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := d.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'work_items'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
			return health, nil
		}
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	health.TableExists = true

	row = d.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM work_items")
	if err := row.Scan(&health.TotalItems); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count work items: %w", err)
	}

	row = d.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// List returns item records filtered by status set (or all items when no
// status is provided), ordered by creation time.
func (d *DB) List(ctx context.Context, statuses ...Status) ([]ItemRecord, error) {
	baseQuery := `SELECT ` + recordColumns + ` FROM work_items`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = d.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = d.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, classifySQL("list", err)
	}
	defer rows.Close()

	var records []ItemRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// RetryFailed moves failed items back to available for reprocessing. With no
// keys, every failed item of the work type retries; an empty work type
// retries all failed items.
func (d *DB) RetryFailed(ctx context.Context, workType string, keys ...string) (int64, error) {
	nowStr, _, _ := d.timestamps()

	query := `UPDATE work_items
        SET status = 'available', next_eligible_at = NULL, error_message = NULL, updated_at = ?
        WHERE status = 'failed'`
	args := []any{nowStr}
	if workType != "" {
		query += ` AND work_type = ?`
		args = append(args, workType)
	}
	if len(keys) > 0 {
		query += ` AND item_key IN (` + makePlaceholders(len(keys)) + `)`
		for _, key := range keys {
			args = append(args, key)
		}
	}
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifySQL("retry failed", err)
	}
	return res.RowsAffected()
}

// Remove deletes one item row.
func (d *DB) Remove(ctx context.Context, workType string, version int, key string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM work_items WHERE work_type = ? AND version = ? AND item_key = ?`,
		workType, version, key,
	)
	if err != nil {
		return false, classifySQL("remove", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classifySQL("remove", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed items.
func (d *DB) ClearCompleted(ctx context.Context) (int64, error) {
	return d.clearWhere(ctx, `WHERE status = 'completed'`)
}

// ClearFailed removes only failed items.
func (d *DB) ClearFailed(ctx context.Context) (int64, error) {
	return d.clearWhere(ctx, `WHERE status = 'failed'`)
}

// Clear removes all items.
func (d *DB) Clear(ctx context.Context) (int64, error) {
	return d.clearWhere(ctx, "")
}

func (d *DB) clearWhere(ctx context.Context, where string) (int64, error) {
	res, err := d.db.ExecContext(ctx, strings.TrimSpace(`DELETE FROM work_items `+where))
	if err != nil {
		return 0, classifySQL("clear", err)
	}
	return res.RowsAffected()
}

const recordColumns = "id, work_type, item_key, version, source_id, mime_type, status, attempts, claim_owner, claimed_at, next_eligible_at, error_message, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (ItemRecord, error) {
	var (
		record      ItemRecord
		statusStr   string
		sourceID    sql.NullString
		mimeType    sql.NullString
		claimOwner  sql.NullString
		claimedRaw  sql.NullString
		eligibleRaw sql.NullString
		errorMsg    sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&record.ID,
		&record.WorkType,
		&record.ItemKey,
		&record.Version,
		&sourceID,
		&mimeType,
		&statusStr,
		&record.Attempts,
		&claimOwner,
		&claimedRaw,
		&eligibleRaw,
		&errorMsg,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return ItemRecord{}, classifySQL("scan record", err)
	}

	record.Status = Status(statusStr)
	record.SourceID = sourceID.String
	record.MimeType = mimeType.String
	record.ClaimOwner = claimOwner.String
	record.ErrorMessage = errorMsg.String

	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	if claimedRaw.Valid {
		if claimed, err := parseTimeString(claimedRaw.String); err == nil {
			record.ClaimedAt = &claimed
		}
	}
	if eligibleRaw.Valid {
		if eligible, err := parseTimeString(eligibleRaw.String); err == nil {
			record.NextEligibleAt = &eligible
		}
	}
	return record, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
