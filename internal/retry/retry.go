package retry

import (
	"context"
	"math"
	"time"
)

// Policy defines exponential backoff parameters.
type Policy struct {
	// MaxRetries counts retries, not calls: fn runs at most MaxRetries+1 times.
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2
	}

	delay := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// Do runs fn until it succeeds, returns an error rejected by retryable, or
// MaxRetries retries after the first call are spent. The last error is
// returned unchanged.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	attempts := 1
	if p.MaxRetries > 0 {
		attempts += p.MaxRetries
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(p.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
