package bridge

import (
	"sync"
	"time"
)

// Health is the process-level degraded-health signal for the download
// engine connection. Authentication failures stick until a later call
// authenticates; reachability recovers on the next successful call.
type Health struct {
	mu         sync.RWMutex
	engineUp   bool
	authOK     bool
	lastErr    error
	lastChange time.Time
}

func NewHealth() *Health {
	return &Health{
		engineUp:   true,
		authOK:     true,
		lastChange: time.Now(),
	}
}

func (h *Health) MarkEngineUp() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.engineUp {
		h.lastChange = time.Now()
	}
	h.engineUp = true
	h.lastErr = nil
}

func (h *Health) MarkEngineDown(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engineUp {
		h.lastChange = time.Now()
	}
	h.engineUp = false
	h.lastErr = err
}

func (h *Health) MarkAuthFailed(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.authOK = false
	h.lastErr = err
	h.lastChange = time.Now()
}

// MarkAuthOK clears a sticky credential failure once a call authenticates.
func (h *Health) MarkAuthOK() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.authOK = true
	h.lastChange = time.Now()
}

// Degraded reports whether the engine connection is unusable.
func (h *Health) Degraded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return !h.engineUp || !h.authOK
}

// Snapshot returns the current health fields for reporting.
func (h *Health) Snapshot() (engineUp, authOK bool, lastErr error, since time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.engineUp, h.authOK, h.lastErr, h.lastChange
}
