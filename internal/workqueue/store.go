package workqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docket/internal/logging"
)

// Store is the SQLite-backed Queue implementation. Multiple typed stores may
// share one DB; all of them read and write the same work_items table, with
// the payload serialized as JSON.
type Store[T Item] struct {
	db     *DB
	logger *slog.Logger
}

// NewStore constructs a typed queue over the shared work database.
func NewStore[T Item](db *DB) *Store[T] {
	return &Store[T]{db: db, logger: db.logger}
}

var _ Queue[Item] = (*Store[Item])(nil)

// Enqueue inserts an item into the backlog. Duplicate (work_type, version,
// key) rows are ignored, which makes re-discovery of known documents cheap.
func (s *Store[T]) Enqueue(ctx context.Context, item T, meta Meta) error {
	if strings.TrimSpace(meta.WorkType) == "" {
		return newError(KindOther, "enqueue", errors.New("meta.WorkType is required"))
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return newError(KindOther, "enqueue", fmt.Errorf("marshal payload: %w", err))
	}

	nowStr, _, _ := s.db.timestamps()
	_, err = s.db.db.ExecContext(ctx,
		`INSERT INTO work_items (
            work_type, item_key, version, source_id, mime_type, payload,
            status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 'available', ?, ?)
        ON CONFLICT (work_type, version, item_key) DO NOTHING`,
		meta.WorkType,
		item.WorkKey(),
		meta.Version,
		nullableString(meta.SourceID),
		nullableString(meta.MimeType),
		string(payload),
		nowStr,
		nowStr,
	)
	if err != nil {
		return classifySQL("enqueue", err)
	}
	return nil
}

// Count estimates the claimable backlog for the filter.
func (s *Store[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, newError(KindOther, "count", err)
	}
	where, args := s.filterClause(filter)
	nowStr, cutoffStr, _ := s.db.timestamps()
	args = append(args, nowStr, cutoffStr)

	var count int64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM work_items WHERE `+where+` AND `+eligiblePredicate,
		args...,
	).Scan(&count)
	if err != nil {
		return 0, classifySQL("count", err)
	}
	return count, nil
}

// FetchBatch returns up to limit claimable items, oldest first. SQLite has
// native ordering and offsets, so the cursor is ignored and returned empty.
func (s *Store[T]) FetchBatch(ctx context.Context, filter Filter, limit int, _ string) ([]T, string, error) {
	if err := filter.Validate(); err != nil {
		return nil, "", newError(KindOther, "fetch batch", err)
	}
	if limit <= 0 {
		return nil, "", nil
	}
	where, args := s.filterClause(filter)
	nowStr, cutoffStr, _ := s.db.timestamps()
	args = append(args, nowStr, cutoffStr, limit)

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT payload FROM work_items
         WHERE `+where+` AND `+eligiblePredicate+`
         ORDER BY created_at, id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, "", classifySQL("fetch batch", err)
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, "", classifySQL("fetch batch scan", err)
		}
		var item T
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return nil, "", newError(KindOther, "fetch batch", fmt.Errorf("decode payload: %w", err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, "", classifySQL("fetch batch", err)
	}
	return items, "", nil
}

// Claim takes an exclusive lease on one item. The predicate ("unclaimed or
// claim expired") and the ownership write commit as one UPDATE, so two
// workers can never both observe the item as unclaimed and both win.
func (s *Store[T]) Claim(ctx context.Context, item T, filter Filter) (*Handle[T], error) {
	if err := filter.Validate(); err != nil {
		return nil, newError(KindOther, "claim", err)
	}
	nowStr, cutoffStr, _ := s.db.timestamps()

	var id int64
	err := s.db.db.QueryRowContext(ctx,
		`UPDATE work_items
         SET status = 'claimed', claim_owner = ?, claimed_at = ?, updated_at = ?,
             attempts = attempts + 1, error_message = NULL
         WHERE work_type = ? AND version = ? AND item_key = ? AND `+eligiblePredicate+`
         RETURNING id`,
		s.db.owner, nowStr, nowStr,
		filter.WorkType, filter.Version, item.WorkKey(),
		nowStr, cutoffStr,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyClaimMiss(ctx, filter, item.WorkKey())
	}
	if err != nil {
		return nil, classifySQL("claim", err)
	}

	c := claim{
		id:            id,
		workType:      filter.WorkType,
		version:       filter.Version,
		itemKey:       item.WorkKey(),
		owner:         s.db.owner,
		retryInterval: filter.retryIntervalOr(s.db.retryInterval),
	}
	return newHandle(item, c, s, s.logger), nil
}

// classifyClaimMiss distinguishes "someone else holds it" from "no such
// item" after a claim update matched zero rows.
func (s *Store[T]) classifyClaimMiss(ctx context.Context, filter Filter, key string) error {
	var count int64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM work_items WHERE work_type = ? AND version = ? AND item_key = ?`,
		filter.WorkType, filter.Version, key,
	).Scan(&count)
	if err != nil {
		return classifySQL("claim", err)
	}
	if count == 0 {
		return newError(KindNotFound, "claim", fmt.Errorf("item %s/%s not found", filter.WorkType, key))
	}
	return newError(KindAlreadyClaimed, "claim", fmt.Errorf("item %s/%s is claimed", filter.WorkType, key))
}

func (s *Store[T]) completeClaim(ctx context.Context, c claim) error {
	nowStr, _, _ := s.db.timestamps()
	res, err := s.db.db.ExecContext(ctx,
		`UPDATE work_items
         SET status = 'completed', claim_owner = NULL, claimed_at = NULL,
             next_eligible_at = NULL, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = 'claimed' AND claim_owner = ?`,
		nowStr, c.id, c.owner,
	)
	if err != nil {
		return classifySQL("complete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classifySQL("complete", err)
	}
	if affected == 0 {
		// Idempotent completion: a retried complete after a transient
		// error is fine; anything else means the claim expired and was
		// taken over.
		var status string
		if err := s.db.db.QueryRowContext(ctx,
			`SELECT status FROM work_items WHERE id = ?`, c.id,
		).Scan(&status); err == nil && status == "completed" {
			return nil
		}
		return newError(KindOther, "complete", fmt.Errorf("claim on %s/%s no longer held", c.workType, c.itemKey))
	}
	return nil
}

func (s *Store[T]) failClaim(ctx context.Context, c claim, cause error, _ bool) error {
	nowStr, _, now := s.db.timestamps()
	eligible := now.Add(c.retryInterval).Format(time.RFC3339Nano)
	message := "unknown failure"
	if cause != nil {
		message = cause.Error()
	}

	res, err := s.db.db.ExecContext(ctx,
		`UPDATE work_items
         SET status = 'failed', claim_owner = NULL, claimed_at = NULL,
             next_eligible_at = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status = 'claimed' AND claim_owner = ?`,
		eligible, message, nowStr, c.id, c.owner,
	)
	if err != nil {
		return classifySQL("fail", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classifySQL("fail", err)
	}
	if affected == 0 {
		return newError(KindOther, "fail", fmt.Errorf("claim on %s/%s no longer held", c.workType, c.itemKey))
	}
	s.logger.Debug("work item failed",
		logging.String(logging.FieldWorkType, c.workType),
		logging.String(logging.FieldItemKey, c.itemKey),
		logging.String("error_message", message),
	)
	return nil
}

func (s *Store[T]) filterClause(filter Filter) (string, []any) {
	clauses := []string{"work_type = ?", "version = ?"}
	args := []any{filter.WorkType, filter.Version}
	if filter.SourceID != "" {
		clauses = append(clauses, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.MimeType != "" {
		clauses = append(clauses, "mime_type = ?")
		args = append(args, filter.MimeType)
	}
	return strings.Join(clauses, " AND "), args
}
