// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capsync",
			Name:      "ratelimit_exceeded_total",
			Help:      "Total rate limit rejections",
		},
		[]string{"limit_type", "scope"},
	)
)

// Config holds rate limiting configuration
type Config struct {
	// Global limits
	GlobalRate  rate.Limit // events per second
	GlobalBurst int

	// Per-key limits
	PerKeyRate  rate.Limit
	PerKeyBurst int

	// Cleanup interval for per-key limiters
	CleanupInterval time.Duration
}

// DefaultConfig returns defaults tuned for diagnostic reporting.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  20,
		GlobalBurst: 40,

		PerKeyRate:  rate.Every(30 * time.Second), // one report per device every 30s
		PerKeyBurst: 1,

		CleanupInterval: 10 * time.Minute,
	}
}

// Limiter combines a global limiter with lazily created per-key limiters.
type Limiter struct {
	config Config
	scope  string

	global *rate.Limiter
	perKey map[string]*rate.Limiter
	mu     sync.Mutex

	now         func() time.Time
	lastCleanup time.Time
}

// New creates a limiter. scope labels the rejection metric.
func New(scope string, config Config) *Limiter {
	return &Limiter{
		config:      config,
		scope:       scope,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perKey:      make(map[string]*rate.Limiter),
		now:         time.Now,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether an event for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeCleanupLocked(now)

	keyLimiter, ok := l.perKey[key]
	if !ok {
		keyLimiter = rate.NewLimiter(l.config.PerKeyRate, l.config.PerKeyBurst)
		l.perKey[key] = keyLimiter
	}
	if !keyLimiter.AllowN(now, 1) {
		rateLimitExceeded.WithLabelValues("per_key", l.scope).Inc()
		return false
	}
	if !l.global.AllowN(now, 1) {
		rateLimitExceeded.WithLabelValues("global", l.scope).Inc()
		return false
	}
	return true
}

// Forget drops the limiter for key, e.g. when a device is retired.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.perKey, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perKey)
}

func (l *Limiter) maybeCleanupLocked(now time.Time) {
	if l.config.CleanupInterval <= 0 || now.Sub(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	// Clear all key limiters (simple approach)
	l.perKey = make(map[string]*rate.Limiter)
	l.lastCleanup = now
}
