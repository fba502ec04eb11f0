package upstream

import (
	"sync"
	"time"
)

// DefaultCooldown is how long a client stays out of strategy selection
// after repeated throttling or an auth failure.
const DefaultCooldown = 60 * time.Second

// Health is a process-wide board of per-client cool-downs. Clients mark
// themselves unhealthy; the strategy selector reads.
type Health struct {
	mu   sync.Mutex
	down map[string]time.Time

	// now is swappable in tests.
	now func() time.Time
}

func NewHealth() *Health {
	return &Health{down: make(map[string]time.Time), now: time.Now}
}

// MarkUnhealthy removes name from selection until the cooldown elapses.
// A zero cooldown applies DefaultCooldown.
func (h *Health) MarkUnhealthy(name string, cooldown time.Duration) {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	until := h.now().Add(cooldown)
	if cur, ok := h.down[name]; !ok || until.After(cur) {
		h.down[name] = until
	}
}

// MarkHealthy clears any cooldown for name. Clients call it after a
// successful request.
func (h *Health) MarkHealthy(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.down, name)
}

// Healthy reports whether name is currently selectable.
func (h *Health) Healthy(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	until, ok := h.down[name]
	if !ok {
		return true
	}
	if h.now().After(until) {
		delete(h.down, name)
		return true
	}
	return false
}
