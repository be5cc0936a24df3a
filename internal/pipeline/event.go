package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"docket/internal/logging"
)

// EventType enumerates pipeline progress events.
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventItemStarted    EventType = "item_started"
	EventItemCompleted  EventType = "item_completed"
	EventItemSkipped    EventType = "item_skipped"
	EventItemFailed     EventType = "item_failed"
	EventStageCompleted EventType = "stage_completed"
)

// Event is one progress notification. Stage is always set; ItemKey is set
// for item-level events and Error for item failures.
type Event struct {
	Type    EventType
	Stage   string
	ItemKey string
	Error   string
	At      time.Time
}

// Sink is a bounded, drop-on-pressure event channel. Publishing waits at
// most the configured timeout for buffer space, then counts the event as
// dropped; the pipeline never blocks on a slow consumer.
type Sink struct {
	ch      chan Event
	timeout time.Duration
	dropped atomic.Int64
	logger  *slog.Logger
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewSink builds a sink with the given buffer size and publish timeout.
func NewSink(buffer int, timeout time.Duration, logger *slog.Logger) *Sink {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sink{
		ch:      make(chan Event, buffer),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Publish delivers an event if the buffer has room within the timeout,
// otherwise drops it.
func (s *Sink) Publish(event Event) {
	if s == nil || s.closed.Load() {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	s.wg.Add(1)
	defer s.wg.Done()
	if s.closed.Load() {
		return
	}

	select {
	case s.ch <- event:
		return
	default:
	}
	if s.timeout <= 0 {
		s.drop(event)
		return
	}
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.ch <- event:
	case <-timer.C:
		s.drop(event)
	}
}

func (s *Sink) drop(event Event) {
	s.dropped.Add(1)
	s.logger.Debug("event dropped under pressure",
		logging.String(logging.FieldEventType, string(event.Type)),
		logging.String(logging.FieldStage, event.Stage),
	)
}

// Events exposes the receive side of the sink.
func (s *Sink) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded under pressure.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and closes the channel once in-flight
// publishes finish. Publish after Close is a silent no-op.
func (s *Sink) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	go func() {
		s.wg.Wait()
		close(s.ch)
	}()
}
