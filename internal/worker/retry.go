package worker

import "time"

// RetryPolicy controls how many times a sweep cycle is attempted and how the
// delay between attempts grows.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// withDefaults fills unset fields with the sweeper's standard backoff.
func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 3
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 30 * time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay returns the delay before the retry following a given 1-based
// attempt, growing by BackoffFactor and clamped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	r = r.withDefaults()

	delay := float64(r.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.BackoffFactor
		if time.Duration(delay) >= r.MaxDelay {
			return r.MaxDelay
		}
	}

	d := time.Duration(delay)
	if d < r.InitialDelay {
		d = r.InitialDelay
	}
	return d
}
