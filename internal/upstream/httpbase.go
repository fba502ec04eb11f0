package upstream

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// httpBase carries what every HTTP-backed client shares: the tuned HTTP
// client, the per-request timeout, the health board, and the 429 streak
// that drives the cool-down.
type httpBase struct {
	name    string
	source  Source
	hc      *http.Client
	health  *Health
	timeout time.Duration

	mu          sync.Mutex
	throttleRun int
}

func newHTTPBase(name string, source Source, hc *http.Client, health *Health, timeout time.Duration) httpBase {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return httpBase{name: name, source: source, hc: hc, health: health, timeout: timeout}
}

func (b *httpBase) Name() string   { return b.name }
func (b *httpBase) Source() Source { return b.source }

// classifyStatus maps an HTTP status code outside 2xx onto the failure
// taxonomy.
func (b *httpBase) classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return E(KindUnauthorized, b.name, fmt.Errorf("status %d", code))
	case code == http.StatusTooManyRequests:
		return E(KindRateLimited, b.name, fmt.Errorf("status %d", code))
	case code == http.StatusNotFound:
		return E(KindNotFound, b.name, fmt.Errorf("status %d", code))
	case code >= 500:
		return E(KindNetwork, b.name, fmt.Errorf("server error: status %d", code))
	default:
		return E(KindProtocol, b.name, fmt.Errorf("unexpected status %d", code))
	}
}

// observe updates the health flag after a request. A success clears the
// cool-down and the throttle streak; a repeated 429 or any auth failure
// takes the client out of selection.
func (b *httpBase) observe(err error) {
	if b.health == nil {
		return
	}
	if err == nil {
		b.mu.Lock()
		b.throttleRun = 0
		b.mu.Unlock()
		b.health.MarkHealthy(b.name)
		return
	}
	switch KindOf(err) {
	case KindUnauthorized:
		b.health.MarkUnhealthy(b.name, DefaultCooldown)
	case KindRateLimited:
		b.mu.Lock()
		b.throttleRun++
		repeated := b.throttleRun >= 2
		b.mu.Unlock()
		if repeated {
			b.health.MarkUnhealthy(b.name, DefaultCooldown)
		}
	}
}

// netErr wraps a transport-level failure.
func (b *httpBase) netErr(err error) error {
	return E(KindNetwork, b.name, err)
}

// protoErr wraps a malformed-payload failure.
func (b *httpBase) protoErr(err error) error {
	return E(KindProtocol, b.name, err)
}
