package worker

import (
	"math"
	"time"
)

// RetryPolicy задаёт экспоненциальный backoff для задач синхронизации с таблицей.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy suits the Sheets API quota: 5 attempts, 2s doubling up to a minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
}

// withDefaults fills zero fields from DefaultRetryPolicy.
func (r RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if r.MaxRetries == 0 {
		r.MaxRetries = def.MaxRetries
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = def.InitialDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = def.MaxDelay
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = def.BackoffFactor
	}
	return r
}

// Exhausted reports whether the attempt (1-based) is the last one allowed.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// NextRetryAt is when a task failing its attempt-th try becomes due again.
func (r RetryPolicy) NextRetryAt(now time.Time, attempt int) time.Time {
	return now.Add(r.NextDelay(attempt))
}
