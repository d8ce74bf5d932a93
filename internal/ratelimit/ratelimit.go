// Package ratelimit throttles outgoing Tavily calls on the client side.
// *Limiter satisfies tavily.Limiter.
package ratelimit

import (
	"sync"
	"time"
)

const (
	defaultLimit           = 10
	defaultCleanupInterval = 5 * time.Minute
)

// Limiter - sliding window по ключу (эндпоинту или общий)
type Limiter struct {
	mu          sync.Mutex
	requests    map[string][]time.Time
	limit       int
	window      time.Duration
	perEndpoint bool

	stopOnce sync.Once
	stopChan chan struct{}
}

type Config struct {
	// RequestsPerMinute is scaled to Window. Defaults to 10.
	RequestsPerMinute int
	// Window defaults to one minute.
	Window time.Duration
	// PerEndpoint gives every key its own budget. Otherwise all keys share one.
	PerEndpoint bool
}

func New(cfg Config) *Limiter {
	limit := cfg.RequestsPerMinute
	if limit <= 0 {
		limit = defaultLimit
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	l := &Limiter{
		requests:    make(map[string][]time.Time),
		limit:       limit,
		window:      window,
		perEndpoint: cfg.PerEndpoint,
		stopChan:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) bucket(key string) string {
	if l.perEndpoint {
		return key
	}
	return ""
}

// Allow records a request under key and reports whether it fits the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key = l.bucket(key)
	now := time.Now()
	fresh := prune(l.requests[key], now.Add(-l.window))

	if len(fresh) >= l.limit {
		l.requests[key] = fresh
		return false
	}

	l.requests[key] = append(fresh, now)
	return true
}

func (l *Limiter) RemainingRequests(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	cnt := 0
	for _, t := range l.requests[l.bucket(key)] {
		if t.After(cutoff) {
			cnt++
		}
	}

	if rem := l.limit - cnt; rem > 0 {
		return rem
	}
	return 0
}

// ResetTime - когда освободится слот (приблизительно)
func (l *Limiter) ResetTime(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.requests[l.bucket(key)]
	if len(ts) == 0 {
		return time.Now()
	}

	// timestamps are appended in order
	return ts[0].Add(l.window)
}

// Stop ends the background cleanup. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

func (l *Limiter) cleanup() {
	tick := time.NewTicker(defaultCleanupInterval)
	defer tick.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-tick.C:
			l.removeStale()
		}
	}
}

func (l *Limiter) removeStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	for key, ts := range l.requests {
		fresh := prune(ts, cutoff)
		if len(fresh) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = fresh
		}
	}
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	fresh := ts[:0] // reuse underlying array
	for _, t := range ts {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}
