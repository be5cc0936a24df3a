package ratelimit

import (
	"context"
	"time"
)

// Hit records one 403 response, used by the soft-limit detector.
type Hit struct {
	URL string    `json:"url"`
	At  time.Time `json:"at"`
}

// DomainState is the shared throttling state for one domain.
type DomainState struct {
	Domain        string        `json:"domain"`
	CurrentDelay  time.Duration `json:"current_delay"`
	InBackoff     bool          `json:"in_backoff"`
	ConsecutiveOK int           `json:"consecutive_ok"`
	TotalRequests int64         `json:"total_requests"`
	RateLimitHits int64         `json:"rate_limit_hits"`
	Recent403s    []Hit         `json:"recent_403s,omitempty"`
	LastUpdated   time.Time     `json:"last_updated"`
}

// Backend persists per-domain state. Mutate must apply fn atomically with
// respect to concurrent mutators of the same domain: two workers that both
// record a failure must produce two multiplications, not one.
type Backend interface {
	// State returns the current state for a domain. Unknown domains return
	// a zero state with the domain name filled in, not an error.
	State(ctx context.Context, domain string) (DomainState, error)

	// Mutate applies fn to the domain's state as an atomic read-modify-write
	// and returns the updated state.
	Mutate(ctx context.Context, domain string, fn func(*DomainState)) (DomainState, error)

	// All returns the state of every known domain, for status reporting.
	All(ctx context.Context) ([]DomainState, error)

	Close() error
}
