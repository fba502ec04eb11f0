// Package strategy classifies query complexity and picks which upstream
// clients to try, in which order, honoring the health board.
package strategy

import (
	"github.com/zakupai/lotsearch/internal/upstream"
)

// Complexity buckets a query by its active filter count.
type Complexity int

const (
	Simple   Complexity = iota // ≤1 active filter
	Moderate                   // 2–3 active filters
	Complex                    // ≥4 active filters
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Moderate:
		return "moderate"
	default:
		return "complex"
	}
}

// Classify maps the active filter count to a complexity bucket.
func Classify(q upstream.SearchQuery) Complexity {
	switch n := q.ActiveFilters(); {
	case n <= 1:
		return Simple
	case n <= 3:
		return Moderate
	default:
		return Complex
	}
}

// Mode says how the orchestrator should run the plan.
type Mode string

const (
	// ModeSequential tries clients one after another with fallback.
	ModeSequential Mode = "sequential"
	// ModeHybrid fans out to all plan clients in parallel and merges.
	ModeHybrid Mode = "hybrid"
)

// Plan is an ordered list of clients plus the execution mode. Tag names the
// strategy for diagnostics and metrics.
type Plan struct {
	Mode    Mode
	Clients []upstream.Client
	Tag     string
}

// Selector owns the configured clients and the shared health board.
// Clients are registered once at startup; absence of a token means the
// client was never registered.
type Selector struct {
	health  *upstream.Health
	clients map[upstream.Source]upstream.Client
}

func NewSelector(health *upstream.Health) *Selector {
	return &Selector{health: health, clients: make(map[upstream.Source]upstream.Client)}
}

// Register adds a configured client. Not safe for concurrent use with
// Select; call during startup only.
func (s *Selector) Register(c upstream.Client) {
	s.clients[c.Source()] = c
}

// Registered reports whether any client is configured.
func (s *Selector) Registered() bool { return len(s.clients) > 0 }

// Client returns a registered client by source, or nil.
func (s *Selector) Client(src upstream.Source) upstream.Client { return s.clients[src] }

// preference orders per complexity bucket. An unhealthy or unregistered
// candidate is skipped and the next one promoted.
var preference = map[Complexity][]upstream.Source{
	Simple:   {upstream.SourceRESTV3, upstream.SourceGQLV3, upstream.SourceGQLV2},
	Moderate: {upstream.SourceGQLV2, upstream.SourceRESTV3, upstream.SourceGQLV3},
	Complex:  {upstream.SourceGQLV2, upstream.SourceGQLV3},
}

// Select builds the plan for q. Complex queries fan out to GQL v2 + REST v3
// in parallel when both are configured and healthy; otherwise the
// sequential complex order applies. The webhook relay, when configured,
// joins as the last fallback for keyword queries.
func (s *Selector) Select(q upstream.SearchQuery) Plan {
	c := Classify(q)
	if c == Complex {
		if hybrid := s.hybrid(); len(hybrid) == 2 {
			return Plan{Mode: ModeHybrid, Clients: hybrid, Tag: "hybrid"}
		}
	}
	ordered := s.healthyOrder(preference[c])
	if q.Keyword != "" {
		if wh := s.clients[upstream.SourceWebhook]; wh != nil && s.health.Healthy(wh.Name()) {
			ordered = append(ordered, wh)
		}
	}
	return Plan{Mode: ModeSequential, Clients: ordered, Tag: c.String()}
}

// Hybrid returns the explicit fan-out plan regardless of complexity, for
// callers that override the strategy. With fewer than two eligible clients
// it degrades to a sequential plan over the moderate preference order.
func (s *Selector) Hybrid() Plan {
	clients := s.hybrid()
	if len(clients) < 2 {
		return Plan{Mode: ModeSequential, Clients: s.healthyOrder(preference[Moderate]), Tag: Moderate.String()}
	}
	return Plan{Mode: ModeHybrid, Clients: clients, Tag: "hybrid"}
}

func (s *Selector) hybrid() []upstream.Client {
	var out []upstream.Client
	for _, src := range []upstream.Source{upstream.SourceGQLV2, upstream.SourceRESTV3} {
		c, ok := s.clients[src]
		if !ok || !s.health.Healthy(c.Name()) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Selector) healthyOrder(order []upstream.Source) []upstream.Client {
	var healthy, cooling []upstream.Client
	for _, src := range order {
		c, ok := s.clients[src]
		if !ok {
			continue
		}
		if s.health.Healthy(c.Name()) {
			healthy = append(healthy, c)
		} else {
			cooling = append(cooling, c)
		}
	}
	// Cooling clients stay reachable as a last resort so a fully
	// throttled configuration can still answer after the cool-down.
	return append(healthy, cooling...)
}
