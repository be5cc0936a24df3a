package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"docket/internal/config"
	"docket/internal/logging"
)

// Limiter enforces the adaptive throttling policy for every domain. Policy
// state lives in the Backend; the limiter itself only holds the per-domain
// token buckets, which are a local politeness floor and deliberately not
// shared across processes.
type Limiter struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	base          time.Duration
	min           time.Duration
	max           time.Duration
	backoffMult   float64
	recoveryMult  float64
	recoveryAfter int
	softWindow    time.Duration
	softThreshold int
	retryAfterCap time.Duration
	burst         int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// LimiterOption configures optional limiter behavior.
type LimiterOption func(*Limiter)

// WithLimiterClock overrides the time source for tests.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLimiter builds a limiter from configuration over the given backend.
func NewLimiter(cfg *config.Config, backend Backend, logger *slog.Logger, opts ...LimiterOption) *Limiter {
	if logger == nil {
		logger = logging.NewNop()
	}
	rl := cfg.RateLimit
	l := &Limiter{
		backend:       backend,
		logger:        logging.NewComponentLogger(logger, "ratelimit"),
		now:           time.Now,
		base:          time.Duration(rl.BaseDelayMS) * time.Millisecond,
		min:           time.Duration(rl.MinDelayMS) * time.Millisecond,
		max:           time.Duration(rl.MaxDelayMS) * time.Millisecond,
		backoffMult:   rl.BackoffMultiplier,
		recoveryMult:  rl.RecoveryMultiplier,
		recoveryAfter: rl.RecoveryThreshold,
		softWindow:    time.Duration(rl.SoftLimitWindowSecs) * time.Second,
		softThreshold: rl.SoftLimitThreshold,
		retryAfterCap: time.Duration(rl.RetryAfterCapSecs) * time.Second,
		burst:         rl.BucketBurst,
		buckets:       make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// bucket returns the token bucket for a domain, creating it on first use.
// The bucket refills at the minimum delay so bursts cannot undercut the
// politeness floor even when the adaptive delay is at its smallest.
func (l *Limiter) bucket(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[domain]
	if !ok {
		interval := l.min
		if interval <= 0 {
			interval = l.base
		}
		b = rate.NewLimiter(rate.Every(interval), l.burst)
		l.buckets[domain] = b
	}
	return b
}

// Delay returns the current adaptive delay for a domain. A backend outage
// degrades to the base delay rather than failing the caller.
func (l *Limiter) Delay(ctx context.Context, domain string) time.Duration {
	state, err := l.backend.State(ctx, domain)
	if err != nil {
		l.warnOutage("read", domain, err)
		return l.base
	}
	return l.delayOrBase(state.CurrentDelay)
}

// Wait blocks until the domain may be contacted: first the token bucket,
// then the adaptive delay. It returns early only when ctx is done.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	if err := l.bucket(domain).Wait(ctx); err != nil {
		return err
	}
	return sleepCtx(ctx, l.Delay(ctx, domain))
}

// RecordRequest counts a request the moment it is issued, so requests
// that never resolve (canceled mid-flight, process death) still show up
// in the domain's totals.
func (l *Limiter) RecordRequest(ctx context.Context, domain string) {
	_, err := l.backend.Mutate(ctx, domain, func(state *DomainState) {
		state.TotalRequests++
	})
	if err != nil {
		l.warnOutage("record request", domain, err)
	}
}

// RecordSuccess notes a successful request. While the domain is backed
// off, enough consecutive successes recover the delay one multiplicative
// step at a time; backoff clears once the delay reaches the floor. A
// domain that was never rate limited stays at the base delay.
func (l *Limiter) RecordSuccess(ctx context.Context, domain string) {
	_, err := l.backend.Mutate(ctx, domain, func(state *DomainState) {
		state.ConsecutiveOK++
		if !state.InBackoff || state.ConsecutiveOK < l.recoveryAfter {
			return
		}
		state.ConsecutiveOK = 0
		recovered := time.Duration(float64(l.delayOrBase(state.CurrentDelay)) * l.recoveryMult)
		if recovered <= l.min {
			recovered = l.min
			state.InBackoff = false
		}
		state.CurrentDelay = recovered
	})
	if err != nil {
		l.warnOutage("record success", domain, err)
	}
}

// RecordFailure notes a failed request and returns how long the caller
// should wait before retrying the domain. Rate limiting signals (429, a
// Retry-After header, or a soft-limit burst of 403s) widen the delay
// multiplicatively; other failures leave the delay untouched.
func (l *Limiter) RecordFailure(ctx context.Context, domain string, status int, retryAfter time.Duration, url string) time.Duration {
	now := l.now().UTC()
	state, err := l.backend.Mutate(ctx, domain, func(state *DomainState) {
		state.ConsecutiveOK = 0

		limited := status == http.StatusTooManyRequests || retryAfter > 0
		if status == http.StatusForbidden {
			state.Recent403s = pruneHits(append(state.Recent403s, Hit{URL: url, At: now}), now, l.softWindow)
			if distinctURLs(state.Recent403s) >= l.softThreshold {
				// A burst of 403s across distinct URLs is a bot wall, not a
				// permissions problem on one document.
				limited = true
				state.Recent403s = nil
			}
		}
		if limited {
			state.RateLimitHits++
			widened := time.Duration(float64(l.delayOrBase(state.CurrentDelay)) * l.backoffMult)
			if widened > l.max {
				widened = l.max
			}
			state.CurrentDelay = widened
			state.InBackoff = true
		}
	})
	if err != nil {
		l.warnOutage("record failure", domain, err)
		return l.base
	}

	wait := l.delayOrBase(state.CurrentDelay)
	if retryAfter > 0 {
		capped := retryAfter
		if capped > l.retryAfterCap {
			capped = l.retryAfterCap
		}
		if capped > wait {
			wait = capped
		}
	}
	return wait
}

// States returns every known domain's throttling state for status output.
func (l *Limiter) States(ctx context.Context) ([]DomainState, error) {
	return l.backend.All(ctx)
}

func (l *Limiter) delayOrBase(delay time.Duration) time.Duration {
	if delay <= 0 {
		return l.base
	}
	return delay
}

func (l *Limiter) warnOutage(op string, domain string, err error) {
	l.logger.Warn("rate limit backend unavailable; using base delay",
		logging.String("op", op),
		logging.String(logging.FieldDomain, domain),
		logging.Error(err),
	)
}

func pruneHits(hits []Hit, now time.Time, window time.Duration) []Hit {
	cutoff := now.Add(-window)
	kept := hits[:0]
	for _, hit := range hits {
		if hit.At.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	return kept
}

func distinctURLs(hits []Hit) int {
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		seen[hit.URL] = struct{}{}
	}
	return len(seen)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
