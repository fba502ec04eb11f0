// Package quota enforces the two stacked limits in front of orchestration:
// an in-process per-user sliding window and the external per-key quota
// service.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/zakupai/lotsearch/internal/upstream"
)

const (
	// DefaultPerUserRPM is the default allowance of 30 requests per minute.
	DefaultPerUserRPM = 30

	minuteWindow = 60 * time.Second

	// searchWindow throttles the search operation to one per second on
	// top of the minute window.
	searchWindow = 1 * time.Second
	searchBurst  = 1
)

// OpSearch is the operation name carrying the extra one-per-second window.
const OpSearch = "search"

// Limiter keeps bounded timestamp lists per user. Windows are pruned on
// every check, so memory stays proportional to recent traffic.
type Limiter struct {
	perMinute int

	mu    sync.Mutex
	users map[int64]*userWindows

	// now is swappable in tests.
	now func() time.Time
}

type userWindows struct {
	minute []time.Time
	search []time.Time
}

func NewLimiter(perUserRPM int) *Limiter {
	if perUserRPM <= 0 {
		perUserRPM = DefaultPerUserRPM
	}
	return &Limiter{
		perMinute: perUserRPM,
		users:     make(map[int64]*userWindows),
		now:       time.Now,
	}
}

// Allow records one request for userID and returns a rate-limited error
// when either window is exhausted. A rejected request does not consume a
// slot.
func (l *Limiter) Allow(userID int64, op string) error {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.users[userID]
	if !ok {
		w = &userWindows{}
		l.users[userID] = w
	}
	w.minute = prune(w.minute, now.Add(-minuteWindow))
	if len(w.minute) >= l.perMinute {
		return upstream.E(upstream.KindRateLimited, "",
			fmt.Errorf("user %d exceeded %d requests per minute", userID, l.perMinute))
	}
	if op == OpSearch {
		w.search = prune(w.search, now.Add(-searchWindow))
		if len(w.search) >= searchBurst {
			return upstream.E(upstream.KindRateLimited, "",
				fmt.Errorf("user %d exceeded %d search per second", userID, searchBurst))
		}
		w.search = append(w.search, now)
	}
	w.minute = append(w.minute, now)
	return nil
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(ts); i++ {
		if ts[i].After(cutoff) {
			break
		}
	}
	return append(ts[:0], ts[i:]...)
}
