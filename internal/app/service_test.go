package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zakupai/lotsearch/internal/cache"
	"github.com/zakupai/lotsearch/internal/metrics"
	"github.com/zakupai/lotsearch/internal/morph"
	"github.com/zakupai/lotsearch/internal/orchestrator"
	"github.com/zakupai/lotsearch/internal/quota"
	"github.com/zakupai/lotsearch/internal/strategy"
	"github.com/zakupai/lotsearch/internal/upstream"
)

type fixedClient struct {
	name    string
	source  upstream.Source
	results []upstream.LotResult

	mu    sync.Mutex
	calls int
}

func (f *fixedClient) Search(context.Context, upstream.SearchQuery) ([]upstream.LotResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.results, nil
}

func (f *fixedClient) LotByNumber(_ context.Context, n string) (*upstream.LotResult, error) {
	for _, r := range f.results {
		if r.LotNumber == n {
			return &r, nil
		}
	}
	return nil, upstream.E(upstream.KindNotFound, f.name, errors.New("not found"))
}

func (f *fixedClient) Name() string            { return f.name }
func (f *fixedClient) Source() upstream.Source { return f.source }

func newTestService(t *testing.T, perUserRPM int, clients ...upstream.Client) (*Service, *metrics.Store) {
	t.Helper()
	store, err := metrics.Open(t.TempDir() + "/metrics.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sel := strategy.NewSelector(upstream.NewHealth())
	for _, c := range clients {
		sel.Register(c)
	}
	orch := orchestrator.New(sel, morph.New(), cache.NewMemory(64),
		orchestrator.WithMetricSink(store), orchestrator.WithEnvelope(5*time.Second))
	gate := quota.NewGate(quota.NewLimiter(perUserRPM), nil)
	return NewService(orch, gate, nil, store, nil), store
}

func TestService_SearchHappyPath(t *testing.T) {
	c := &fixedClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		{LotNumber: "L-1", LotName: "Лак паркетный", Amount: 100, Currency: "KZT", Source: upstream.SourceRESTV3},
	}}
	svc, store := newTestService(t, 100, c)

	resp, err := svc.Search(context.Background(), SearchRequest{
		Query:  upstream.SearchQuery{Keyword: "лак", Limit: 10},
		UserID: 1,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Diagnostics == nil {
		t.Fatalf("response = %+v", resp)
	}

	st, err := store.SystemStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalSearches != 1 || st.SuccessRate != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestService_GateRejectionIsRecorded(t *testing.T) {
	c := &fixedClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		{LotNumber: "L-1", LotName: "Лак", Amount: 1, Currency: "KZT", Source: upstream.SourceRESTV3},
	}}
	svc, store := newTestService(t, 2, c)
	ctx := context.Background()

	// Spaced past the one-per-second search window so only the minute
	// window is in play.
	for i := 0; i < 2; i++ {
		req := SearchRequest{Query: upstream.SearchQuery{Keyword: "лак", Limit: 10}, UserID: 5}
		if _, err := svc.Search(ctx, req); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		time.Sleep(1100 * time.Millisecond)
	}

	_, err := svc.Search(ctx, SearchRequest{Query: upstream.SearchQuery{Keyword: "лак", Limit: 10}, UserID: 5})
	if upstream.KindOf(err) != upstream.KindRateLimited {
		t.Fatalf("third request kind = %v, want rate_limited", upstream.KindOf(err))
	}
	// The upstream was reached twice at most: the second identical query
	// is a cache hit, the rejected third never got that far.
	c.mu.Lock()
	calls := c.calls
	c.mu.Unlock()
	if calls == 0 {
		t.Fatal("first search never reached the upstream")
	}

	st, err := store.SystemStats(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalSearches != 3 {
		t.Fatalf("total = %d, want 3 (rejection is recorded too)", st.TotalSearches)
	}
	if st.ByStrategy["gate"] != 1 {
		t.Fatalf("by strategy = %v, want one gate row", st.ByStrategy)
	}
}

func TestService_CreateKeyWithoutBilling(t *testing.T) {
	svc, _ := newTestService(t, 100,
		&fixedClient{name: "rest_v3", source: upstream.SourceRESTV3})
	_, err := svc.CreateKey(context.Background(), 1, "")
	if err == nil {
		t.Fatal("key creation without a billing service must fail")
	}
}

func TestService_GetLotByNumber(t *testing.T) {
	c := &fixedClient{name: "rest_v3", source: upstream.SourceRESTV3, results: []upstream.LotResult{
		{LotNumber: "L-7", LotName: "Лот", Amount: 1, Currency: "KZT", Source: upstream.SourceRESTV3},
	}}
	svc, _ := newTestService(t, 100, c)

	got, err := svc.GetLotByNumber(context.Background(), "L-7")
	if err != nil || got == nil || got.LotNumber != "L-7" {
		t.Fatalf("lot = %+v, err = %v", got, err)
	}
	missing, err := svc.GetLotByNumber(context.Background(), "L-404")
	if err != nil || missing != nil {
		t.Fatalf("missing = %+v, err = %v", missing, err)
	}
}
