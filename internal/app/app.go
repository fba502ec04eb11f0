package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zakupai/lotsearch/internal/cache"
	"github.com/zakupai/lotsearch/internal/metrics"
	"github.com/zakupai/lotsearch/internal/morph"
	"github.com/zakupai/lotsearch/internal/observe"
	"github.com/zakupai/lotsearch/internal/orchestrator"
	"github.com/zakupai/lotsearch/internal/quota"
	"github.com/zakupai/lotsearch/internal/refs"
	"github.com/zakupai/lotsearch/internal/strategy"
	"github.com/zakupai/lotsearch/internal/upstream"
)

// App owns every long-lived component, constructed once at startup and
// injected by reference. Nothing here is a mutable global.
type App struct {
	Cfg     Config
	Service *Service
	Metrics *metrics.Store
	Obs     *observe.Metrics
	Health  *upstream.Health
	Cache   cache.Cache

	redis *cache.Redis
}

// New wires the service. Clients without a token are simply not
// registered, which removes them from strategy selection.
func New(ctx context.Context, cfg Config) (*App, error) {
	cfg.ApplyDefaults()

	hc := newHighThroughputHTTPClient(cfg.InsecureSkipTLSVerify)
	board := upstream.NewHealth()

	tables := refs.Builtin()
	if cfg.RefsPath != "" {
		if err := tables.Load(cfg.RefsPath); err != nil {
			return nil, fmt.Errorf("load reference tables: %w", err)
		}
	}

	selector := strategy.NewSelector(board)
	if cfg.GQLV2Token != "" {
		selector.Register(upstream.NewGQLV2(cfg.GQLV2URL, cfg.GQLV2Token, hc, board, cfg.RequestTimeout))
	}
	if cfg.GQLV3Token != "" {
		selector.Register(upstream.NewGQLV3(cfg.GQLV3URL, cfg.GQLV3Token, hc, board, cfg.RequestTimeout))
		selector.Register(upstream.NewRESTV3(cfg.RESTV3URL, cfg.GQLV3Token, hc, board, cfg.RequestTimeout, tables))
	}
	if cfg.WebhookURL != "" {
		selector.Register(upstream.NewWebhook(cfg.WebhookURL, hc, board, cfg.RequestTimeout))
	}
	if !selector.Registered() {
		log.Warn().Msg("no upstream tokens configured; every search will fail")
	}

	var store cache.Cache
	var redisCache *cache.Redis
	if cfg.RedisAddr != "" {
		redisCache = cache.NewRedis(cfg.RedisAddr)
		store = redisCache
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable at startup; continuing")
		}
		cancel()
	} else {
		store = cache.NewMemory(0)
	}

	metricStore, err := metrics.Open(cfg.MetricsDBPath)
	if err != nil {
		return nil, err
	}

	mp, err := observe.InitProvider()
	if err != nil {
		metricStore.Close()
		return nil, fmt.Errorf("init metrics provider: %w", err)
	}
	obs, err := observe.NewMetrics(mp)
	if err != nil {
		metricStore.Close()
		return nil, fmt.Errorf("create instruments: %w", err)
	}

	orch := orchestrator.New(selector, morph.New(), store,
		orchestrator.WithMetricSink(metricStore),
		orchestrator.WithObserver(obs),
		orchestrator.WithEnvelope(cfg.Envelope),
		orchestrator.WithCacheTTL(cfg.CacheTTL),
	)

	var billing *quota.BillingClient
	if cfg.BillingURL != "" {
		billing = quota.NewBillingClient(cfg.BillingURL, hc, false)
	}
	gate := quota.NewGate(quota.NewLimiter(cfg.PerUserRPM), billing)

	svc := &Service{
		orch:    orch,
		gate:    gate,
		billing: billing,
		store:   metricStore,
		obs:     obs,
	}

	return &App{
		Cfg:     cfg,
		Service: svc,
		Metrics: metricStore,
		Obs:     obs,
		Health:  board,
		Cache:   store,
		redis:   redisCache,
	}, nil
}

// Close releases owned resources.
func (a *App) Close() {
	if a.Metrics != nil {
		a.Metrics.Close()
	}
}

// RunMaintenance loops retention and size-based eviction until ctx is
// done. Interval zero means hourly.
func (a *App) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Metrics.Cleanup(ctx, a.Cfg.MetricsRetentionDays); err != nil {
				log.Warn().Err(err).Msg("retention cleanup failed")
			}
			report, err := a.Metrics.AutoCleanupBySize(ctx, a.Cfg.MetricsMaxSizeMB)
			if err != nil {
				log.Warn().Err(err).Msg("size cleanup failed")
			} else if report != nil {
				log.Info().Int64("deleted", report.Deleted).Msg("size-triggered eviction ran")
			}
		}
	}
}

// RedisPing exposes shared-cache connectivity for readiness checks; nil
// when the in-process cache is active.
func (a *App) RedisPing() func(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Ping
}
