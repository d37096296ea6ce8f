package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"salonbook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLimiter uses the primary limiter until it errors, then serves from
// the fallback and probes the primary again once a minute.
type FailoverLimiter struct {
	primary  domain.KeyedLimiter
	fallback domain.KeyedLimiter
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverLimiter(primary, fallback domain.KeyedLimiter, logger *zerolog.Logger) *FailoverLimiter {
	return &FailoverLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (f *FailoverLimiter) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) > recoveryInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *FailoverLimiter) markDown(err error) {
	if !f.isDown.Swap(true) {
		f.logger.Error().Err(err).Msg("Primary limiter failed, falling back to memory")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverLimiter) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("Primary limiter recovered")
	}
}

func (f *FailoverLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if f.usePrimary() {
		allowed, err := f.primary.Allow(ctx, key, limit, window)
		if err == nil {
			f.markUp()
			return allowed, nil
		}
		f.markDown(err)
	}
	return f.fallback.Allow(ctx, key, limit, window)
}

func (f *FailoverLimiter) Reset(ctx context.Context, key string) error {
	// both sides may hold a counter for the key
	fallbackErr := f.fallback.Reset(ctx, key)
	if f.usePrimary() {
		if err := f.primary.Reset(ctx, key); err != nil {
			f.markDown(err)
		} else {
			f.markUp()
		}
	}
	return fallbackErr
}
