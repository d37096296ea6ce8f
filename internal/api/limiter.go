package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// keyedLimiters hands out one token bucket per client key.
type keyedLimiters struct {
	limiters sync.Map // map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newKeyedLimiters(rps float64, burst int) *keyedLimiters {
	if burst <= 0 {
		burst = 5
	}
	return &keyedLimiters{rps: rps, burst: burst}
}

func (l *keyedLimiters) allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	return l.get(key).Allow()
}

func (l *keyedLimiters) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
