// Package orchestrator runs a search end to end: cache probe, morphological
// expansion, strategy pick, upstream execution with fallback or hybrid
// fan-out, merge, dedupe, relevance filter, rank, trim, cache write, and
// the metric append.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zakupai/lotsearch/internal/cache"
	"github.com/zakupai/lotsearch/internal/metrics"
	"github.com/zakupai/lotsearch/internal/morph"
	"github.com/zakupai/lotsearch/internal/observe"
	"github.com/zakupai/lotsearch/internal/strategy"
	"github.com/zakupai/lotsearch/internal/upstream"
)

const (
	// DefaultEnvelope is the per-request wall clock budget.
	DefaultEnvelope = 30 * time.Second

	// maxVariantQueries bounds how many expanded queries actually hit an
	// upstream per client.
	maxVariantQueries = 8

	// variantConcurrency bounds parallel variant calls per client.
	variantConcurrency = 4

	// maxFallbacks limits the sequential path to the first client plus
	// two fallbacks.
	maxFallbacks = 2

	// StrategyCache tags responses served from the cache.
	StrategyCache = "cache"
)

// MetricSink receives one record per completed orchestration. The sqlite
// store implements it; tests substitute their own.
type MetricSink interface {
	Log(ctx context.Context, m metrics.Metric) error
}

// ClientReport is the per-client slice of the diagnostic block.
type ClientReport struct {
	Client    string `json:"client"`
	Results   int    `json:"results"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// Diagnostics describes how a request was answered.
type Diagnostics struct {
	Strategy  string         `json:"strategy"`
	CacheHit  bool           `json:"cache_hit"`
	PerClient []ClientReport `json:"per_client,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
}

// Orchestrator wires the pure pieces (morphology, dedupe, ranking) to the
// effectful ones (clients, cache, metric sink).
type Orchestrator struct {
	selector *strategy.Selector
	morph    *morph.Engine
	cache    cache.Cache
	sink     MetricSink       // optional
	obs      *observe.Metrics // optional
	envelope time.Duration
	cacheTTL time.Duration
}

type Option func(*Orchestrator)

func WithMetricSink(sink MetricSink) Option  { return func(o *Orchestrator) { o.sink = sink } }
func WithObserver(m *observe.Metrics) Option { return func(o *Orchestrator) { o.obs = m } }
func WithEnvelope(d time.Duration) Option    { return func(o *Orchestrator) { o.envelope = d } }
func WithCacheTTL(d time.Duration) Option    { return func(o *Orchestrator) { o.cacheTTL = d } }

func New(selector *strategy.Selector, engine *morph.Engine, store cache.Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		selector: selector,
		morph:    engine,
		cache:    store,
		envelope: DefaultEnvelope,
		cacheTTL: cache.DefaultTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search answers one query. It never fails on "all clients returned
// empty"; the only error paths are validation, the gate, and every client
// failing while the cache missed.
func (o *Orchestrator) Search(ctx context.Context, q upstream.SearchQuery, userID int64, override strategy.Mode) ([]upstream.LotResult, *Diagnostics, error) {
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, &Diagnostics{Strategy: "validation"}, err
	}

	started := time.Now()
	key := cache.Key(q)
	if cached, ok := o.cache.Get(ctx, key); ok {
		o.obs.RecordCacheProbe(ctx, true)
		diag := &Diagnostics{Strategy: StrategyCache, CacheHit: true}
		o.record(ctx, userID, q, len(cached), StrategyCache, started, nil)
		o.obs.RecordSearch(ctx, StrategyCache, time.Since(started), true)
		return cached, diag, nil
	}
	o.obs.RecordCacheProbe(ctx, false)

	var analysis *morph.Analysis
	if q.Keyword != "" {
		a := o.morph.Expand(q.Keyword)
		analysis = &a
	}

	plan := o.selector.Select(q)
	if override == strategy.ModeHybrid {
		plan = o.selector.Hybrid()
	}
	diag := &Diagnostics{Strategy: plan.Tag}
	if len(plan.Clients) == 0 {
		err := upstream.E(upstream.KindInternal, "", fmt.Errorf("no upstream clients configured"))
		o.record(ctx, userID, q, 0, plan.Tag, started, err)
		o.obs.RecordSearch(ctx, plan.Tag, time.Since(started), false)
		return nil, diag, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.envelope)
	defer cancel()

	var groups [][]upstream.LotResult
	var clientErrs []error
	localOffset := false
	switch plan.Mode {
	case strategy.ModeHybrid:
		groups, clientErrs = o.runHybrid(ctx, plan, q, analysis, diag)
		localOffset = true
	default:
		groups, clientErrs = o.runSequential(ctx, plan, q, analysis, diag)
	}

	succeeded := len(groups) > 0
	if !succeeded {
		err := upstream.Worst(clientErrs)
		if err == nil {
			err = upstream.E(upstream.KindTimeout, "", fmt.Errorf("no client completed within the envelope"))
		}
		o.record(ctx, userID, q, 0, plan.Tag, started, err)
		o.obs.RecordSearch(ctx, plan.Tag, time.Since(started), false)
		return nil, diag, err
	}

	merged := dedupe(groups)
	if analysis != nil {
		merged = o.filterRelevant(merged, analysis.Original)
	}
	rank(merged)
	merged = trim(merged, q, localOffset)

	if len(merged) > 0 {
		o.cache.Set(ctx, key, merged, o.cacheTTL)
	}
	o.record(ctx, userID, q, len(merged), plan.Tag, started, nil)
	o.obs.RecordSearch(ctx, plan.Tag, time.Since(started), true)
	return merged, diag, nil
}

// runSequential walks the plan order, trying the next candidate on any
// failure, up to two fallbacks past the first client.
func (o *Orchestrator) runSequential(ctx context.Context, plan strategy.Plan, q upstream.SearchQuery, analysis *morph.Analysis, diag *Diagnostics) ([][]upstream.LotResult, []error) {
	clients := plan.Clients
	if len(clients) > maxFallbacks+1 {
		clients = clients[:maxFallbacks+1]
	}
	var errs []error
	for _, c := range clients {
		results, err := o.runClient(ctx, c, q, analysis, diag)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return [][]upstream.LotResult{results}, errs
	}
	return nil, errs
}

// runHybrid fans out to every plan client concurrently inside the envelope
// and keeps whatever completed. Per-client failures become empty partials
// attached to the diagnostics.
func (o *Orchestrator) runHybrid(ctx context.Context, plan strategy.Plan, q upstream.SearchQuery, analysis *morph.Analysis, diag *Diagnostics) ([][]upstream.LotResult, []error) {
	type partial struct {
		results []upstream.LotResult
		err     error
	}
	// The offset is applied locally after the merge, so clients fetch
	// from the start of their own streams.
	q.Offset = 0
	partials := make([]partial, len(plan.Clients))
	reports := make([]ClientReport, len(plan.Clients))
	var g errgroup.Group
	for i, c := range plan.Clients {
		g.Go(func() error {
			sub := &Diagnostics{}
			res, err := o.runClient(ctx, c, q, analysis, sub)
			partials[i] = partial{results: res, err: err}
			if len(sub.PerClient) > 0 {
				reports[i] = sub.PerClient[0]
			}
			return nil
		})
	}
	_ = g.Wait()

	var groups [][]upstream.LotResult
	var errs []error
	// Walk in launch order so the first launched client wins dedupe ties.
	for i := range plan.Clients {
		diag.PerClient = append(diag.PerClient, reports[i])
		if err := partials[i].err; err != nil {
			errs = append(errs, err)
			diag.Errors = append(diag.Errors, err.Error())
			continue
		}
		groups = append(groups, partials[i].results)
	}
	return groups, errs
}

// runClient executes one client, fanning the morphological variants out
// when expansion produced more than the original query. The first
// encounter order across variants is preserved.
func (o *Orchestrator) runClient(ctx context.Context, c upstream.Client, q upstream.SearchQuery, analysis *morph.Analysis, diag *Diagnostics) ([]upstream.LotResult, error) {
	started := time.Now()
	variants := []string{q.Keyword}
	if analysis != nil && len(analysis.Expanded) > 1 {
		variants = analysis.Expanded
		if len(variants) > maxVariantQueries {
			variants = variants[:maxVariantQueries]
		}
	}

	groups := make([][]upstream.LotResult, len(variants))
	errs := make([]error, len(variants))
	var g errgroup.Group
	g.SetLimit(variantConcurrency)
	for i, variant := range variants {
		vq := q
		vq.Keyword = variant
		g.Go(func() error {
			groups[i], errs[i] = c.Search(ctx, vq)
			return nil
		})
	}
	_ = g.Wait()

	merged := dedupe(groups)
	failed := 0
	var firstErr error
	for _, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	report := ClientReport{
		Client:    c.Name(),
		Results:   len(merged),
		ElapsedMS: time.Since(started).Milliseconds(),
	}
	if failed == len(variants) {
		report.Error = firstErr.Error()
		diag.PerClient = append(diag.PerClient, report)
		diag.Errors = append(diag.Errors, firstErr.Error())
		o.obs.RecordUpstream(ctx, c.Name(), firstErr, upstream.KindOf(firstErr).String())
		return nil, firstErr
	}
	if firstErr != nil {
		// Partial variant failure is tolerable; note it and move on.
		log.Debug().Err(firstErr).Str("client", c.Name()).Int("failed_variants", failed).Msg("some variant queries failed")
	}
	diag.PerClient = append(diag.PerClient, report)
	o.obs.RecordUpstream(ctx, c.Name(), nil, "")
	return merged, nil
}

// GetLotByNumber resolves a single lot, trying clients in the complex
// preference order. A lot missing everywhere is (nil, nil), not an error.
func (o *Orchestrator) GetLotByNumber(ctx context.Context, lotNumber string) (*upstream.LotResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.envelope)
	defer cancel()
	var errs []error
	sawNotFound := false
	for _, src := range []upstream.Source{upstream.SourceGQLV2, upstream.SourceGQLV3, upstream.SourceRESTV3, upstream.SourceWebhook} {
		c := o.selector.Client(src)
		if c == nil {
			continue
		}
		r, err := c.LotByNumber(ctx, lotNumber)
		if err != nil {
			if upstream.KindOf(err) == upstream.KindNotFound {
				sawNotFound = true
				continue
			}
			errs = append(errs, err)
			continue
		}
		return r, nil
	}
	if sawNotFound || len(errs) == 0 {
		return nil, nil
	}
	return nil, upstream.Worst(errs)
}

func (o *Orchestrator) record(ctx context.Context, userID int64, q upstream.SearchQuery, count int, tag string, started time.Time, err error) {
	if o.sink == nil {
		return
	}
	m := metrics.Metric{
		UserID:       userID,
		Query:        q.Keyword,
		ResultsCount: count,
		Strategy:     tag,
		ExecMS:       time.Since(started).Milliseconds(),
		Success:      err == nil,
	}
	if err != nil {
		m.Error = upstream.KindOf(err).String()
	}
	// The metrics writer never raises to the caller.
	if logErr := o.sink.Log(context.WithoutCancel(ctx), m); logErr != nil {
		log.Warn().Err(logErr).Msg("metric write failed")
	}
}

func (o *Orchestrator) filterRelevant(results []upstream.LotResult, original string) []upstream.LotResult {
	out := results[:0]
	for _, r := range results {
		if o.morph.IsRelevant(r.LotName+" "+r.Description, original) {
			out = append(out, r)
		}
	}
	return out
}

// dedupe concatenates the groups preserving the first occurrence of each
// identity; the client (and variant) that yielded a result first wins.
func dedupe(groups [][]upstream.LotResult) []upstream.LotResult {
	seen := map[string]struct{}{}
	var out []upstream.LotResult
	for _, g := range groups {
		for _, r := range g {
			key := r.IdentityKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// rank sorts by amount descending; the stable sort keeps insertion order
// for ties.
func rank(results []upstream.LotResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Amount > results[j].Amount
	})
}

// trim applies offset (only where the path did not delegate it upstream)
// and the limit.
func trim(results []upstream.LotResult, q upstream.SearchQuery, localOffset bool) []upstream.LotResult {
	if localOffset && q.Offset > 0 {
		if q.Offset >= len(results) {
			return nil
		}
		results = results[q.Offset:]
	}
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}
