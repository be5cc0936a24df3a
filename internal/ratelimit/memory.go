package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBackend keeps domain state in process memory. It is the default
// backend for single-process runs and for tests.
type MemoryBackend struct {
	mu      sync.Mutex
	domains map[string]DomainState
	now     func() time.Time
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		domains: make(map[string]DomainState),
		now:     time.Now,
	}
}

var _ Backend = (*MemoryBackend)(nil)

// State returns the current state for a domain.
func (b *MemoryBackend) State(ctx context.Context, domain string) (DomainState, error) {
	if err := ctx.Err(); err != nil {
		return DomainState{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.domains[domain]
	if !ok {
		return DomainState{Domain: domain}, nil
	}
	return state, nil
}

// Mutate applies fn under the backend lock, making the read-modify-write
// atomic for concurrent callers.
func (b *MemoryBackend) Mutate(ctx context.Context, domain string, fn func(*DomainState)) (DomainState, error) {
	if err := ctx.Err(); err != nil {
		return DomainState{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.domains[domain]
	if !ok {
		state = DomainState{Domain: domain}
	}
	fn(&state)
	state.Domain = domain
	state.LastUpdated = b.now().UTC()
	b.domains[domain] = state
	return state, nil
}

// All returns every known domain, sorted by name.
func (b *MemoryBackend) All(ctx context.Context) ([]DomainState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make([]DomainState, 0, len(b.domains))
	for _, state := range b.domains {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Domain < states[j].Domain })
	return states, nil
}

// Close is a no-op for the memory backend.
func (b *MemoryBackend) Close() error { return nil }
