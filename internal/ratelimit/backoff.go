package ratelimit

import "time"

// Backoff returns the bounded exponential wait for a retry attempt:
// base doubled per attempt, never exceeding cap. Attempt 0 is the first
// retry.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	wait := base
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= cap {
			return cap
		}
	}
	if wait > cap {
		return cap
	}
	return wait
}
