// Package watch runs user-scoped subscriptions: periodic re-queries whose
// previously seen identities are diffed away so only new lots reach the
// callback.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zakupai/lotsearch/internal/upstream"
)

// Type says what a subscription watches.
type Type string

const (
	TypeLots      Type = "lots"
	TypeContracts Type = "contracts"
)

// failureStreakLimit deactivates a subscription after this many
// consecutive callback failures.
const failureStreakLimit = 3

// Callback delivers newly seen results. A non-nil error counts toward the
// failure streak.
type Callback func(ctx context.Context, sub Subscription, fresh []upstream.LotResult) error

// Subscription is one registered watch.
type Subscription struct {
	ID       string
	UserID   int64
	Type     Type
	Filters  upstream.SearchQuery
	Interval time.Duration
	Active   bool

	lastSeen  map[string]struct{}
	lastCheck time.Time
	failures  int
}

// Watcher owns the subscription set and the polling loop.
type Watcher struct {
	search   func(ctx context.Context, q upstream.SearchQuery, userID int64) ([]upstream.LotResult, error)
	callback Callback
	tick     time.Duration

	mu   sync.Mutex
	subs map[string]*Subscription
}

// New builds a watcher polling due subscriptions once per tick. The search
// function is usually a thin closure over the orchestrator.
func New(search func(ctx context.Context, q upstream.SearchQuery, userID int64) ([]upstream.LotResult, error), cb Callback, tick time.Duration) *Watcher {
	if tick <= 0 {
		tick = time.Second
	}
	return &Watcher{search: search, callback: cb, tick: tick, subs: make(map[string]*Subscription)}
}

// Register activates a subscription. Intervals under a minute are raised
// to a minute to keep upstream traffic sane.
func (w *Watcher) Register(sub Subscription) {
	if sub.Interval < time.Minute {
		sub.Interval = time.Minute
	}
	sub.Active = true
	sub.lastSeen = make(map[string]struct{})
	w.mu.Lock()
	w.subs[sub.ID] = &sub
	w.mu.Unlock()
	log.Info().Str("subscription", sub.ID).Int64("user", sub.UserID).Msg("subscription registered")
}

// Unregister removes a subscription; unknown IDs are a no-op.
func (w *Watcher) Unregister(id string) {
	w.mu.Lock()
	delete(w.subs, id)
	w.mu.Unlock()
}

// Active reports whether id is registered and active.
func (w *Watcher) Active(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	sub, ok := w.subs[id]
	return ok && sub.Active
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.sweep(ctx, now)
		}
	}
}

func (w *Watcher) due(now time.Time) []*Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*Subscription
	for _, sub := range w.subs {
		if !sub.Active {
			continue
		}
		if sub.lastCheck.IsZero() || now.Sub(sub.lastCheck) >= sub.Interval {
			sub.lastCheck = now
			out = append(out, sub)
		}
	}
	return out
}

// sweep checks every due subscription once. Exported indirectly through
// Run; tests call it via CheckNow.
func (w *Watcher) sweep(ctx context.Context, now time.Time) {
	for _, sub := range w.due(now) {
		w.check(ctx, sub)
	}
}

// CheckNow forces one check of a subscription regardless of its interval,
// returning the fresh results it delivered.
func (w *Watcher) CheckNow(ctx context.Context, id string) ([]upstream.LotResult, error) {
	w.mu.Lock()
	sub, ok := w.subs[id]
	w.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return w.check(ctx, sub), nil
}

func (w *Watcher) check(ctx context.Context, sub *Subscription) []upstream.LotResult {
	results, err := w.search(ctx, sub.Filters, sub.UserID)
	if err != nil {
		log.Warn().Err(err).Str("subscription", sub.ID).Msg("subscription query failed")
		return nil
	}
	var fresh []upstream.LotResult
	w.mu.Lock()
	for _, r := range results {
		key := r.IdentityKey()
		if _, seen := sub.lastSeen[key]; seen {
			continue
		}
		sub.lastSeen[key] = struct{}{}
		fresh = append(fresh, r)
	}
	w.mu.Unlock()
	if len(fresh) == 0 || w.callback == nil {
		return fresh
	}
	if err := w.callback(ctx, *sub, fresh); err != nil {
		w.mu.Lock()
		sub.failures++
		dead := sub.failures >= failureStreakLimit
		if dead {
			sub.Active = false
		}
		w.mu.Unlock()
		if dead {
			log.Warn().Str("subscription", sub.ID).Msg("subscription deactivated after callback failures")
		}
		return fresh
	}
	w.mu.Lock()
	sub.failures = 0
	w.mu.Unlock()
	return fresh
}
