package server

import (
	"sync"
	"time"
)

// =============================================================================
// Rejection Limiter
// =============================================================================

// RejectLimiter blocks identities that keep pushing for unprovisioned hosts.
//
// Only rejected pushes are counted. An accepted push resets the identity.
//
// Flow:
//  1. Batch arrives
//  2. Check IsBlocked() - if true, answer 429 before any store lookup
//  3. Ingest
//  4. If the host is unprovisioned: call RecordFailure()
//  5. If the batch is accepted: call Reset()
type RejectLimiter struct {
	mu       sync.RWMutex
	failures map[string]*rejectEntry
	limit    int
	window   time.Duration
	stop     chan struct{}
	once     sync.Once
}

type rejectEntry struct {
	count     int
	resetTime time.Time
}

// NewRejectLimiter creates a limiter. A limit below 1 never blocks.
func NewRejectLimiter(limit int, window time.Duration) *RejectLimiter {
	rl := &RejectLimiter{
		failures: make(map[string]*rejectEntry),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}
	if limit > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// IsBlocked returns true if identity has reached the limit in the current
// window.
func (rl *RejectLimiter) IsBlocked(identity string) bool {
	if rl.limit < 1 {
		return false
	}

	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entry, ok := rl.failures[identity]
	if !ok || time.Now().After(entry.resetTime) {
		return false
	}
	return entry.count >= rl.limit
}

// RecordFailure records a rejected push.
func (rl *RejectLimiter) RecordFailure(identity string) {
	if rl.limit < 1 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.failures[identity]
	if !ok || now.After(entry.resetTime) {
		rl.failures[identity] = &rejectEntry{count: 1, resetTime: now.Add(rl.window)}
		return
	}
	entry.count++
}

// Reset clears identity after an accepted push.
func (rl *RejectLimiter) Reset(identity string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.failures, identity)
}

// FailureCount returns the current count for identity.
func (rl *RejectLimiter) FailureCount(identity string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entry, ok := rl.failures[identity]
	if !ok || time.Now().After(entry.resetTime) {
		return 0
	}
	return entry.count
}

// Stop ends the cleanup goroutine.
func (rl *RejectLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RejectLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RejectLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for id, entry := range rl.failures {
		if now.After(entry.resetTime) {
			delete(rl.failures, id)
		}
	}
}
