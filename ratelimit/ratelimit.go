// Package ratelimit provides a fixed-window request counter keyed by
// identity or network origin.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures a Limiter.
type Config struct {
	// Max is the number of requests allowed per window.
	// Default: 60
	Max int

	// Window is the counting window length.
	// Default: 1 minute
	Window time.Duration

	// Now overrides the time source.
	Now func() time.Time
}

// Limiter counts requests per key in fixed windows. The counter for a key
// resets when its window elapses; exceeding Max within a window is refused
// with the window's remaining time as a retry-after hint.
type Limiter struct {
	config Config

	mu      sync.Mutex
	windows map[string]*window
	ops     int
}

type window struct {
	start time.Time
	count int
}

// NewLimiter creates a limiter, applying defaults.
func NewLimiter(config Config) *Limiter {
	if config.Max <= 0 {
		config.Max = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Limiter{
		config:  config,
		windows: make(map[string]*window),
	}
}

// Allow counts one request against key. When refused, retryAfter is the
// positive remaining window time.
func (l *Limiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.config.Now()

	l.ops++
	if l.ops%1024 == 0 {
		l.pruneLocked(now)
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.config.Window {
		l.windows[key] = &window{start: now, count: 1}
		return true, 0
	}

	if w.count >= l.config.Max {
		return false, w.start.Add(l.config.Window).Sub(now)
	}

	w.count++
	return true, 0
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) pruneLocked(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.config.Window {
			delete(l.windows, key)
		}
	}
}
