package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zakupai/lotsearch/internal/cache"
	"github.com/zakupai/lotsearch/internal/metrics"
	"github.com/zakupai/lotsearch/internal/morph"
	"github.com/zakupai/lotsearch/internal/strategy"
	"github.com/zakupai/lotsearch/internal/upstream"
)

// stubClient answers by keyword: byKeyword results win over the default
// set, and err fails every call. Safe for the concurrent variant fan-out.
type stubClient struct {
	name    string
	source  upstream.Source
	results []upstream.LotResult
	byKw    map[string][]upstream.LotResult
	err     error

	mu       sync.Mutex
	calls    int
	keywords []string
}

func (s *stubClient) Search(_ context.Context, q upstream.SearchQuery) ([]upstream.LotResult, error) {
	s.mu.Lock()
	s.calls++
	s.keywords = append(s.keywords, q.Keyword)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if r, ok := s.byKw[q.Keyword]; ok {
		return r, nil
	}
	return s.results, nil
}

func (s *stubClient) LotByNumber(_ context.Context, n string) (*upstream.LotResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, r := range s.results {
		if r.LotNumber == n {
			return &r, nil
		}
	}
	return nil, upstream.E(upstream.KindNotFound, s.name, errors.New("not found"))
}

func (s *stubClient) Name() string            { return s.name }
func (s *stubClient) Source() upstream.Source { return s.source }

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubClient) sawKeyword(kw string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keywords {
		if k == kw {
			return true
		}
	}
	return false
}

// hungClient parks every call until the caller's context expires.
type hungClient struct {
	name   string
	source upstream.Source
}

func (h *hungClient) Search(ctx context.Context, _ upstream.SearchQuery) ([]upstream.LotResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *hungClient) LotByNumber(ctx context.Context, _ string) (*upstream.LotResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *hungClient) Name() string            { return h.name }
func (h *hungClient) Source() upstream.Source { return h.source }

type sinkRecorder struct {
	mu      sync.Mutex
	metrics []metrics.Metric
}

func (s *sinkRecorder) Log(_ context.Context, m metrics.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *sinkRecorder) last(t *testing.T) metrics.Metric {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.metrics) == 0 {
		t.Fatal("no metric recorded")
	}
	return s.metrics[len(s.metrics)-1]
}

func lot(number, name string, amount float64, src upstream.Source) upstream.LotResult {
	return upstream.LotResult{
		LotNumber: number, LotName: name, Amount: amount,
		Currency: "KZT", Source: src,
	}
}

func newOrch(sink MetricSink, clients ...upstream.Client) (*Orchestrator, *cache.Memory) {
	sel := strategy.NewSelector(upstream.NewHealth())
	for _, c := range clients {
		sel.Register(c)
	}
	mem := cache.NewMemory(64)
	o := New(sel, morph.New(), mem, WithMetricSink(sink), WithEnvelope(5*time.Second))
	return o, mem
}

func TestSearch_CacheHitSkipsUpstreams(t *testing.T) {
	c := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3,
		results: []upstream.LotResult{lot("L-1", "Лак паркетный", 100, upstream.SourceRESTV3)}}
	sink := &sinkRecorder{}
	o, mem := newOrch(sink, c)
	ctx := context.Background()
	q := upstream.SearchQuery{Keyword: "лак", Limit: 10}

	q.Normalize()
	mem.Set(ctx, cache.Key(q), []upstream.LotResult{lot("L-9", "Лак кэшированный", 50, upstream.SourceGQLV2)}, time.Minute)

	got, diag, err := o.Search(ctx, q, 1, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !diag.CacheHit || diag.Strategy != StrategyCache {
		t.Fatalf("diag = %+v", diag)
	}
	if len(got) != 1 || got[0].LotNumber != "L-9" {
		t.Fatalf("results = %+v", got)
	}
	if c.callCount() != 0 {
		t.Fatalf("upstream called %d times on a cache hit", c.callCount())
	}
	if m := sink.last(t); m.Strategy != StrategyCache || !m.Success {
		t.Fatalf("metric = %+v", m)
	}
}

func TestSearch_VariantFanOutFindsInflectedMatch(t *testing.T) {
	// The upstream only matches the plural surface form.
	c := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3,
		byKw: map[string][]upstream.LotResult{
			"лаки": {lot("L-1", "Лаки и краски", 100, upstream.SourceRESTV3)},
		}}
	sink := &sinkRecorder{}
	o, _ := newOrch(sink, c)

	got, diag, err := o.Search(context.Background(), upstream.SearchQuery{Keyword: "лак", Limit: 10}, 1, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !c.sawKeyword("лаки") {
		t.Fatal("expanded variant лаки never reached the upstream")
	}
	if len(got) != 1 || got[0].LotNumber != "L-1" {
		t.Fatalf("results = %+v", got)
	}
	if diag.Strategy != "simple" {
		t.Fatalf("strategy = %q", diag.Strategy)
	}
	if m := sink.last(t); m.ResultsCount != 1 {
		t.Fatalf("metric = %+v", m)
	}
}

func TestSearch_HybridDedupesFirstLaunchedWins(t *testing.T) {
	// Both clients return lot 42; the first launched client's copy
	// survives. Relevance filtering is off for filter-only queries.
	gql := &stubClient{name: "gql_v2", source: upstream.SourceGQLV2, results: []upstream.LotResult{
		lot("L-42", "Общий лот", 300, upstream.SourceGQLV2),
	}}
	rest := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		lot("L-42", "Общий лот", 300, upstream.SourceRESTV3),
		lot("L-43", "Только здесь", 900, upstream.SourceRESTV3),
	}}
	sink := &sinkRecorder{}
	o, _ := newOrch(sink, gql, rest)

	from := 100.0
	q := upstream.SearchQuery{
		CustomerBIN: "123456789012", StatusIDs: []int{210},
		TradeMethodIDs: []int{1}, AmountFrom: &from, Limit: 10,
	}
	got, diag, err := o.Search(context.Background(), q, 1, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diag.Strategy != "hybrid" {
		t.Fatalf("strategy = %q", diag.Strategy)
	}
	if len(got) != 2 {
		t.Fatalf("results = %+v", got)
	}
	// Ranked by amount descending.
	if got[0].LotNumber != "L-43" || got[1].LotNumber != "L-42" {
		t.Fatalf("order = %v %v", got[0].LotNumber, got[1].LotNumber)
	}
	if got[1].Source != upstream.SourceGQLV2 {
		t.Fatalf("dedupe winner = %q, want first launched gql_v2", got[1].Source)
	}
	if len(diag.PerClient) != 2 {
		t.Fatalf("per-client reports = %+v", diag.PerClient)
	}
}

func TestSearch_HybridToleratesPartialFailure(t *testing.T) {
	gql := &stubClient{name: "gql_v2", source: upstream.SourceGQLV2,
		err: upstream.E(upstream.KindNetwork, "gql_v2", errors.New("refused"))}
	rest := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		lot("L-1", "Выживший", 10, upstream.SourceRESTV3),
	}}
	o, _ := newOrch(&sinkRecorder{}, gql, rest)

	from := 1.0
	q := upstream.SearchQuery{
		CustomerBIN: "123456789012", StatusIDs: []int{210},
		TradeMethodIDs: []int{1}, AmountFrom: &from, Limit: 10,
	}
	got, diag, err := o.Search(context.Background(), q, 1, "")
	if err != nil {
		t.Fatalf("partial failure must not fail the search: %v", err)
	}
	if len(got) != 1 || got[0].LotNumber != "L-1" {
		t.Fatalf("results = %+v", got)
	}
	if len(diag.Errors) != 1 {
		t.Fatalf("diag errors = %v", diag.Errors)
	}
}

func TestSearch_AllClientsFailReturnsWorst(t *testing.T) {
	gql := &stubClient{name: "gql_v2", source: upstream.SourceGQLV2,
		err: upstream.E(upstream.KindNetwork, "gql_v2", errors.New("refused"))}
	rest := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3,
		err: upstream.E(upstream.KindUnauthorized, "rest_v3", errors.New("401"))}
	sink := &sinkRecorder{}
	o, _ := newOrch(sink, gql, rest)

	_, _, err := o.Search(context.Background(), upstream.SearchQuery{Keyword: "лак", Limit: 10}, 1, "")
	if upstream.KindOf(err) != upstream.KindUnauthorized {
		t.Fatalf("kind = %v, want the worst (unauthorized)", upstream.KindOf(err))
	}
	m := sink.last(t)
	if m.Success || m.Error != "unauthorized" || m.ResultsCount != 0 {
		t.Fatalf("metric = %+v", m)
	}
}

func TestSearch_EnvelopeExpiryReportsTimeout(t *testing.T) {
	c := &hungClient{name: "rest_v3", source: upstream.SourceRESTV3}
	sink := &sinkRecorder{}
	sel := strategy.NewSelector(upstream.NewHealth())
	sel.Register(c)
	o := New(sel, morph.New(), cache.NewMemory(64),
		WithMetricSink(sink), WithEnvelope(100*time.Millisecond))

	start := time.Now()
	got, _, err := o.Search(context.Background(), upstream.SearchQuery{Keyword: "лак", Limit: 10}, 1, "")
	if err == nil {
		t.Fatal("expired envelope with no partials must fail the search")
	}
	if upstream.KindOf(err) != upstream.KindTimeout {
		t.Fatalf("kind = %v, want timeout", upstream.KindOf(err))
	}
	if got != nil {
		t.Fatalf("results = %+v, want none", got)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("envelope not enforced, search took %v", elapsed)
	}
	m := sink.last(t)
	if m.Success || m.Error != "timeout" || m.ResultsCount != 0 {
		t.Fatalf("metric = %+v", m)
	}
}

func TestSearch_SequentialFallback(t *testing.T) {
	rest := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3,
		err: upstream.E(upstream.KindNetwork, "rest_v3", errors.New("down"))}
	gqlv3 := &stubClient{name: "gql_v3", source: upstream.SourceGQLV3, results: []upstream.LotResult{
		lot("L-5", "Лак резервный", 20, upstream.SourceGQLV3),
	}}
	o, _ := newOrch(&sinkRecorder{}, rest, gqlv3)

	got, _, err := o.Search(context.Background(), upstream.SearchQuery{Keyword: "лак", Limit: 10}, 1, "")
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if len(got) != 1 || got[0].Source != upstream.SourceGQLV3 {
		t.Fatalf("results = %+v", got)
	}
	if rest.callCount() == 0 {
		t.Fatal("preferred client was never tried")
	}
}

func TestSearch_RelevanceFilterDropsNoise(t *testing.T) {
	c := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		lot("L-1", "Лак паркетный", 100, upstream.SourceRESTV3),
		lot("L-2", "Мебель школьная", 900, upstream.SourceRESTV3),
	}}
	o, _ := newOrch(&sinkRecorder{}, c)

	got, _, err := o.Search(context.Background(), upstream.SearchQuery{Keyword: "лак", Limit: 10}, 1, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].LotNumber != "L-1" {
		t.Fatalf("irrelevant result kept: %+v", got)
	}
}

func TestSearch_ResultProperties(t *testing.T) {
	c := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		lot("L-1", "Лак один", 10, upstream.SourceRESTV3),
		lot("L-2", "Лак два", 500, upstream.SourceRESTV3),
		lot("L-3", "Лак три", 100, upstream.SourceRESTV3),
		lot("L-1", "Лак один", 10, upstream.SourceRESTV3), // duplicate
	}}
	o, _ := newOrch(&sinkRecorder{}, c)

	got, _, err := o.Search(context.Background(), upstream.SearchQuery{Keyword: "лак", Limit: 2}, 1, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) > 2 {
		t.Fatalf("limit violated: %d", len(got))
	}
	seen := map[string]bool{}
	for i, r := range got {
		if seen[r.IdentityKey()] {
			t.Fatalf("duplicate identity %q", r.IdentityKey())
		}
		seen[r.IdentityKey()] = true
		if i > 0 && got[i-1].Amount < r.Amount {
			t.Fatalf("not sorted by amount desc: %v", got)
		}
	}
	if got[0].LotNumber != "L-2" {
		t.Fatalf("top result = %+v", got[0])
	}
}

func TestSearch_EmptyUpstreamIsNotAnError(t *testing.T) {
	c := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3}
	sink := &sinkRecorder{}
	o, mem := newOrch(sink, c)

	got, _, err := o.Search(context.Background(), upstream.SearchQuery{Keyword: "лак", Limit: 10}, 1, "")
	if err != nil {
		t.Fatalf("empty result set is not a failure: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("results = %+v", got)
	}
	if m := sink.last(t); !m.Success || m.ResultsCount != 0 {
		t.Fatalf("metric = %+v", m)
	}
	// Empty result sets are not cached.
	if mem.Len() != 0 {
		t.Fatalf("empty results cached, len = %d", mem.Len())
	}
}

func TestSearch_ValidationRejectsWithoutMetric(t *testing.T) {
	sink := &sinkRecorder{}
	o, _ := newOrch(sink, &stubClient{name: "rest_v3", source: upstream.SourceRESTV3})

	_, _, err := o.Search(context.Background(), upstream.SearchQuery{CustomerBIN: "short"}, 1, "")
	if upstream.KindOf(err) != upstream.KindValidation {
		t.Fatalf("kind = %v", upstream.KindOf(err))
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.metrics) != 0 {
		t.Fatalf("validation failure must not produce a metric: %+v", sink.metrics)
	}
}

func TestSearch_HybridOverride(t *testing.T) {
	gql := &stubClient{name: "gql_v2", source: upstream.SourceGQLV2, results: []upstream.LotResult{
		lot("L-1", "Лак", 10, upstream.SourceGQLV2),
	}}
	rest := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		lot("L-2", "Лак второй", 20, upstream.SourceRESTV3),
	}}
	o, _ := newOrch(&sinkRecorder{}, gql, rest)

	got, diag, err := o.Search(context.Background(), upstream.SearchQuery{Keyword: "лак", Limit: 10}, 1, strategy.ModeHybrid)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diag.Strategy != "hybrid" {
		t.Fatalf("override ignored: %+v", diag)
	}
	if len(got) != 2 {
		t.Fatalf("results = %+v", got)
	}
}

func TestSearch_SecondCallServedFromCache(t *testing.T) {
	c := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		lot("L-1", "Лак", 10, upstream.SourceRESTV3),
	}}
	o, _ := newOrch(&sinkRecorder{}, c)
	ctx := context.Background()
	q := upstream.SearchQuery{Keyword: "лак", Limit: 10}

	if _, _, err := o.Search(ctx, q, 1, ""); err != nil {
		t.Fatalf("first search: %v", err)
	}
	before := c.callCount()
	_, diag, err := o.Search(ctx, q, 1, "")
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if !diag.CacheHit {
		t.Fatal("second identical query should hit the cache")
	}
	if c.callCount() != before {
		t.Fatal("cache hit still reached the upstream")
	}
}

func TestGetLotByNumber(t *testing.T) {
	gql := &stubClient{name: "gql_v2", source: upstream.SourceGQLV2,
		err: upstream.E(upstream.KindNetwork, "gql_v2", errors.New("down"))}
	rest := &stubClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		lot("L-7", "Найденный", 10, upstream.SourceRESTV3),
	}}
	o, _ := newOrch(&sinkRecorder{}, gql, rest)

	got, err := o.GetLotByNumber(context.Background(), "L-7")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.LotNumber != "L-7" {
		t.Fatalf("lot = %+v", got)
	}

	// Missing everywhere is (nil, nil).
	missing, err := o.GetLotByNumber(context.Background(), "L-404")
	if err != nil || missing != nil {
		t.Fatalf("missing lot: %+v %v", missing, err)
	}
}
