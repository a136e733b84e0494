package extract

import (
	"sync"
	"time"
)

// LimiterConfig controls the per-person sliding window for assisted
// extraction calls.
type LimiterConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// DefaultLimiterConfig returns the recommended limiter settings.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{MaxRequests: 10, Window: time.Minute}
}

// Limiter is an in-memory sliding-window rate limiter keyed by person id.
// It is best-effort abuse dampening: state resets on process restart,
// which is acceptable since it is not a security boundary.
type Limiter struct {
	mu     sync.Mutex
	config LimiterConfig
	seen   map[string][]time.Time
	now    func() time.Time
}

// NewLimiter creates a Limiter with the given config.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultLimiterConfig().MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultLimiterConfig().Window
	}
	return &Limiter{
		config: cfg,
		seen:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records one request for person and reports whether it fits into
// the sliding window.
func (l *Limiter) Allow(person string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.config.Window)

	kept := l.seen[person][:0]
	for _, t := range l.seen[person] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.config.MaxRequests {
		l.seen[person] = kept
		return false
	}
	l.seen[person] = append(kept, now)
	return true
}
