package workqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"docket/internal/logging"
)

// memoryRecord is one item's state inside MemoryQueue.
type memoryRecord struct {
	id             int64
	meta           Meta
	key            string
	status         Status
	attempts       int
	claimOwner     string
	claimedAt      time.Time
	nextEligibleAt time.Time
	createdAt      time.Time
	item           any
	sequence       int64
}

// MemoryQueue is the process-local Queue backend. It mirrors the SQLite
// store's claim semantics (single winner, claim expiry, retry intervals)
// behind one mutex, and is intended for tests and single-process runs where
// durability doesn't matter.
type MemoryQueue[T Item] struct {
	mu            sync.Mutex
	records       map[string]*memoryRecord
	nextID        int64
	owner         string
	claimExpiry   time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// MemoryOption configures optional MemoryQueue behavior.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now func() time.Time
}

// WithMemoryClock overrides the time source for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewMemoryQueue constructs an in-memory queue with the given claim expiry
// and default retry interval.
func NewMemoryQueue[T Item](owner string, claimExpiry, retryInterval time.Duration, logger *slog.Logger, opts ...MemoryOption) *MemoryQueue[T] {
	options := memoryOptions{now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MemoryQueue[T]{
		records:       make(map[string]*memoryRecord),
		owner:         owner,
		claimExpiry:   claimExpiry,
		retryInterval: retryInterval,
		logger:        logging.NewComponentLogger(logger, "workqueue"),
		now:           options.now,
	}
}

var _ Queue[Item] = (*MemoryQueue[Item])(nil)

func recordKey(workType string, version int, key string) string {
	return workType + "\x00" + strconv.Itoa(version) + "\x00" + key
}

// Enqueue adds an item; re-enqueueing a known (work type, version, key) is a
// no-op, matching the SQLite store.
func (q *MemoryQueue[T]) Enqueue(ctx context.Context, item T, meta Meta) error {
	if err := (Filter{WorkType: meta.WorkType, Version: meta.Version}).Validate(); err != nil {
		return newError(KindOther, "enqueue", err)
	}
	if err := ctx.Err(); err != nil {
		return newError(KindOther, "enqueue", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	mapKey := recordKey(meta.WorkType, meta.Version, item.WorkKey())
	if _, exists := q.records[mapKey]; exists {
		return nil
	}
	q.nextID++
	q.records[mapKey] = &memoryRecord{
		id:        q.nextID,
		meta:      meta,
		key:       item.WorkKey(),
		status:    StatusAvailable,
		createdAt: q.now().UTC(),
		item:      item,
		sequence:  q.nextID,
	}
	return nil
}

// eligible reports whether the record is claimable at instant now.
func (q *MemoryQueue[T]) eligible(rec *memoryRecord, now time.Time) bool {
	switch rec.status {
	case StatusAvailable:
		return true
	case StatusFailed:
		return !rec.nextEligibleAt.IsZero() && !rec.nextEligibleAt.After(now)
	case StatusClaimed:
		return !rec.claimedAt.IsZero() && !rec.claimedAt.After(now.Add(-q.claimExpiry))
	}
	return false
}

func matches(rec *memoryRecord, filter Filter) bool {
	if rec.meta.WorkType != filter.WorkType || rec.meta.Version != filter.Version {
		return false
	}
	if filter.SourceID != "" && rec.meta.SourceID != filter.SourceID {
		return false
	}
	if filter.MimeType != "" && rec.meta.MimeType != filter.MimeType {
		return false
	}
	return true
}

// Count returns the number of currently claimable items under the filter.
func (q *MemoryQueue[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, newError(KindOther, "count", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, newError(KindOther, "count", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var count int64
	for _, rec := range q.records {
		if matches(rec, filter) && q.eligible(rec, now) {
			count++
		}
	}
	return count, nil
}

// FetchBatch returns up to limit claimable items oldest first. The cursor is
// the numeric offset into the eligible set; an empty returned cursor means
// the set is exhausted.
func (q *MemoryQueue[T]) FetchBatch(ctx context.Context, filter Filter, limit int, cursor string) ([]T, string, error) {
	if err := filter.Validate(); err != nil {
		return nil, "", newError(KindOther, "fetch batch", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", newError(KindOther, "fetch batch", err)
	}
	if limit <= 0 {
		return nil, "", nil
	}

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			return nil, "", newError(KindOther, "fetch batch", fmt.Errorf("malformed cursor %q", cursor))
		}
		offset = parsed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var eligible []*memoryRecord
	for _, rec := range q.records {
		if matches(rec, filter) && q.eligible(rec, now) {
			eligible = append(eligible, rec)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].sequence < eligible[j].sequence })

	if offset >= len(eligible) {
		return nil, "", nil
	}
	end := offset + limit
	if end > len(eligible) {
		end = len(eligible)
	}

	items := make([]T, 0, end-offset)
	for _, rec := range eligible[offset:end] {
		items = append(items, rec.item.(T))
	}
	next := ""
	if end < len(eligible) {
		next = strconv.Itoa(end)
	}
	return items, next, nil
}

// Claim takes an exclusive lease on one item. Eligibility check and
// ownership write happen under the same lock acquisition, so exactly one
// concurrent caller wins.
func (q *MemoryQueue[T]) Claim(ctx context.Context, item T, filter Filter) (*Handle[T], error) {
	if err := filter.Validate(); err != nil {
		return nil, newError(KindOther, "claim", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindOther, "claim", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	rec, exists := q.records[recordKey(filter.WorkType, filter.Version, item.WorkKey())]
	if !exists {
		return nil, newError(KindNotFound, "claim", fmt.Errorf("item %s/%s not found", filter.WorkType, item.WorkKey()))
	}
	now := q.now().UTC()
	if !q.eligible(rec, now) {
		return nil, newError(KindAlreadyClaimed, "claim", fmt.Errorf("item %s/%s is claimed", filter.WorkType, item.WorkKey()))
	}

	rec.status = StatusClaimed
	rec.claimOwner = q.owner
	rec.claimedAt = now
	rec.attempts++

	c := claim{
		id:            rec.id,
		workType:      filter.WorkType,
		version:       filter.Version,
		itemKey:       item.WorkKey(),
		owner:         q.owner,
		retryInterval: filter.retryIntervalOr(q.retryInterval),
	}
	return newHandle(item, c, q, q.logger), nil
}

func (q *MemoryQueue[T]) completeClaim(ctx context.Context, c claim) error {
	if err := ctx.Err(); err != nil {
		return newError(KindOther, "complete", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	rec, exists := q.records[recordKey(c.workType, c.version, c.itemKey)]
	if !exists {
		return newError(KindOther, "complete", fmt.Errorf("item %s/%s no longer exists", c.workType, c.itemKey))
	}
	if rec.status != StatusClaimed || rec.claimOwner != c.owner {
		if rec.status == StatusCompleted {
			return nil
		}
		return newError(KindOther, "complete", fmt.Errorf("claim on %s/%s no longer held", c.workType, c.itemKey))
	}
	rec.status = StatusCompleted
	rec.claimOwner = ""
	rec.claimedAt = time.Time{}
	rec.nextEligibleAt = time.Time{}
	return nil
}

func (q *MemoryQueue[T]) failClaim(ctx context.Context, c claim, cause error, _ bool) error {
	if err := ctx.Err(); err != nil {
		return newError(KindOther, "fail", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	rec, exists := q.records[recordKey(c.workType, c.version, c.itemKey)]
	if !exists {
		return newError(KindOther, "fail", fmt.Errorf("item %s/%s no longer exists", c.workType, c.itemKey))
	}
	if rec.status != StatusClaimed || rec.claimOwner != c.owner {
		return newError(KindOther, "fail", fmt.Errorf("claim on %s/%s no longer held", c.workType, c.itemKey))
	}
	rec.status = StatusFailed
	rec.claimOwner = ""
	rec.claimedAt = time.Time{}
	rec.nextEligibleAt = q.now().UTC().Add(c.retryInterval)

	message := "unknown failure"
	if cause != nil {
		message = cause.Error()
	}
	q.logger.Debug("work item failed",
		logging.String(logging.FieldWorkType, c.workType),
		logging.String(logging.FieldItemKey, c.itemKey),
		logging.String("error_message", message),
	)
	return nil
}

// Stats returns the item counts per status, mirroring DB.Stats for the
// memory backend.
func (q *MemoryQueue[T]) Stats() map[Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := make(map[Status]int)
	for _, rec := range q.records {
		stats[rec.status]++
	}
	return stats
}
