package fetcher

import (
	"math"
	"time"
)

// RetryPolicy bounds attempts and computes the wait after a failed attempt:
// min(MaxWait, max(MinWait, Base*2^attempt)).
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy allows 3 attempts with waits clamped to [4s, 10s].
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Base:        time.Second,
		MinWait:     4 * time.Second,
		MaxWait:     10 * time.Second,
	}
}

// ShouldRetry reports whether another attempt may follow the given failed one.
// attempt is 1-based.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	return attempt < p.maxAttempts()
}

// Backoff returns the wait before the attempt following attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.Base) * math.Pow(2, float64(attempt))
	if delay < float64(p.MinWait) {
		delay = float64(p.MinWait)
	}
	if p.MaxWait > 0 && delay > float64(p.MaxWait) {
		delay = float64(p.MaxWait)
	}
	return time.Duration(delay)
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}
