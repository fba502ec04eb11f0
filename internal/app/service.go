package app

import (
	"context"
	"time"

	"github.com/zakupai/lotsearch/internal/metrics"
	"github.com/zakupai/lotsearch/internal/observe"
	"github.com/zakupai/lotsearch/internal/orchestrator"
	"github.com/zakupai/lotsearch/internal/quota"
	"github.com/zakupai/lotsearch/internal/strategy"
	"github.com/zakupai/lotsearch/internal/upstream"
)

// SearchRequest is the ingress shape for one search.
type SearchRequest struct {
	Query    upstream.SearchQuery
	UserID   int64
	APIKey   string
	Override strategy.Mode // empty means automatic selection
}

// SearchResponse pairs results with the diagnostic block.
type SearchResponse struct {
	Results     []upstream.LotResult      `json:"results"`
	Diagnostics *orchestrator.Diagnostics `json:"diagnostics"`
}

// Service is the in-process facade the bot handler and the HTTP adapter
// call: quota gate first, then orchestration, then usage accounting.
type Service struct {
	orch    *orchestrator.Orchestrator
	gate    *quota.Gate
	billing *quota.BillingClient
	store   *metrics.Store
	obs     *observe.Metrics
}

// NewService assembles a facade from already-built parts; app.New is the
// usual caller, tests are the other.
func NewService(orch *orchestrator.Orchestrator, gate *quota.Gate, billing *quota.BillingClient, store *metrics.Store, obs *observe.Metrics) *Service {
	return &Service{orch: orch, gate: gate, billing: billing, store: store, obs: obs}
}

// Search runs the gate and the orchestrator. A gate rejection is recorded
// as a failed metric and short-circuits before any upstream work.
func (s *Service) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if err := s.gate.Check(ctx, req.UserID, req.APIKey, quota.OpSearch, 1); err != nil {
		s.obs.RecordRateLimited(ctx)
		if s.store != nil {
			_ = s.store.Log(context.WithoutCancel(ctx), metrics.Metric{
				UserID:    req.UserID,
				Query:     req.Query.Keyword,
				Strategy:  "gate",
				Success:   false,
				Error:     upstream.KindOf(err).String(),
				Timestamp: time.Now().UTC(),
			})
		}
		return SearchResponse{}, err
	}
	results, diag, err := s.orch.Search(ctx, req.Query, req.UserID, req.Override)
	if err != nil {
		return SearchResponse{Diagnostics: diag}, err
	}
	s.gate.Record(req.APIKey, quota.OpSearch, 1)
	return SearchResponse{Results: results, Diagnostics: diag}, nil
}

// GetLotByNumber resolves one lot; (nil, nil) when no upstream knows it.
func (s *Service) GetLotByNumber(ctx context.Context, lotNumber string) (*upstream.LotResult, error) {
	return s.orch.GetLotByNumber(ctx, lotNumber)
}

// CreateKey proxies key provisioning to the billing service.
func (s *Service) CreateKey(ctx context.Context, tgID int64, email string) (quota.KeyGrant, error) {
	if s.billing == nil {
		return quota.KeyGrant{}, upstream.E(upstream.KindInternal, "billing", errBillingDisabled)
	}
	return s.billing.CreateKey(ctx, tgID, email)
}

// Stats accessors used by the diagnostics endpoints. These are read-only
// and intentionally skip the per-key quota (local windows still apply
// through the HTTP layer's throttling).

func (s *Service) PopularQueries(ctx context.Context, days, limit int) ([]metrics.PopularQuery, error) {
	return s.store.PopularQueries(ctx, days, limit)
}

func (s *Service) UserAnalytics(ctx context.Context, userID int64, days int) (metrics.UserAnalytics, error) {
	return s.store.UserAnalytics(ctx, userID, days)
}

func (s *Service) SystemStats(ctx context.Context, days int) (metrics.SystemStats, error) {
	return s.store.SystemStats(ctx, days)
}

func (s *Service) TopUsers(ctx context.Context, days, limit int) ([]metrics.UserCount, error) {
	return s.store.TopUsers(ctx, days, limit)
}
