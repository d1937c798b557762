package reliability

import "time"

// RetryPolicy bounds synthesis attempts for one segment. A single policy is
// shared by both streaming paths; only the attempt timeout differs.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// AttemptTimeout caps each individual synthesis attempt.
	AttemptTimeout time.Duration
	// BackoffBase is the delay before the first retry; it doubles per retry.
	BackoffBase time.Duration
	// BackoffCap bounds the computed backoff.
	BackoffCap time.Duration
	// RetryableStatus decides whether an upstream HTTP status is worth retrying.
	RetryableStatus func(code int) bool
}

// DefaultRetryPolicy returns the policy used when config supplies nothing:
// two retries at 500ms and 1s, 10s per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      2,
		AttemptTimeout:  10 * time.Second,
		BackoffBase:     500 * time.Millisecond,
		BackoffCap:      5 * time.Second,
		RetryableStatus: IsRetryableHTTPStatus,
	}
}

// Backoff returns the delay before retry number retry (0-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	cap := p.BackoffCap
	if cap <= 0 {
		cap = 5 * time.Second
	}
	return ExponentialBackoff(retry, base, cap)
}

// Retryable reports whether the status code should be retried under this
// policy, falling back to the default classifier when none is set.
func (p RetryPolicy) Retryable(code int) bool {
	if p.RetryableStatus != nil {
		return p.RetryableStatus(code)
	}
	return IsRetryableHTTPStatus(code)
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes: rate limits
// and server-side failures retry, other client errors are terminal.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableRealtimeMessageType classifies retryable upstream realtime errors.
func IsRetryableRealtimeMessageType(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
