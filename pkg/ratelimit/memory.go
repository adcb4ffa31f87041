package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int64
}

// MemoryLimiter is a single-instance fixed-window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	window  time.Duration
	limit   int
	now     func() time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(windowSize time.Duration, limit int) *MemoryLimiter {
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryLimiter{
		clients: make(map[string]*window),
		window:  windowSize,
		limit:   limit,
		now:     time.Now,
	}
}

// Allow counts a request for client in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, client string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := windowStart(l.now(), l.window)
	w, ok := l.clients[client]
	if !ok || !w.start.Equal(start) {
		if !ok {
			l.prune(start)
		}
		w = &window{start: start}
		l.clients[client] = w
	}
	w.count++

	d := decide(w.count, l.limit, start, l.window)
	if !d.Allowed {
		rateLimitBlocksTotal.WithLabelValues("memory").Inc()
	}
	return d, nil
}

// prune drops clients whose window has ended. Caller holds mu.
func (l *MemoryLimiter) prune(current time.Time) {
	for client, w := range l.clients {
		if w.start.Before(current) {
			delete(l.clients, client)
		}
	}
}
