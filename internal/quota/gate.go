package quota

import (
	"context"
	"fmt"

	"github.com/zakupai/lotsearch/internal/upstream"
)

// Gate stacks the in-process limiter and the external key quota. Both
// checks run before any orchestration work; either rejection short-circuits
// the request.
type Gate struct {
	limiter *Limiter
	billing *BillingClient // nil disables external quota checks
}

func NewGate(limiter *Limiter, billing *BillingClient) *Gate {
	return &Gate{limiter: limiter, billing: billing}
}

// Check applies the local window first (cheap, no I/O), then the external
// quota. On an invalid key the reported reason comes from the quota
// service.
func (g *Gate) Check(ctx context.Context, userID int64, apiKey, op string, cost int) error {
	if err := g.limiter.Allow(userID, op); err != nil {
		return err
	}
	if g.billing == nil || apiKey == "" {
		return nil
	}
	v, err := g.billing.ValidateKey(ctx, apiKey, op, cost)
	if err != nil {
		return err
	}
	if !v.Valid {
		reason := v.Error
		if reason == "" {
			reason = fmt.Sprintf("quota exhausted (%d/%d on plan %s)", v.UsageCount, v.UsageLimit, v.Plan)
		}
		return upstream.E(upstream.KindRateLimited, "billing", fmt.Errorf("%s", reason))
	}
	return nil
}

// Record logs usage after a successful request; best-effort.
func (g *Gate) Record(apiKey, op string, requests int) {
	if g.billing == nil || apiKey == "" {
		return
	}
	g.billing.LogUsage(apiKey, op, requests)
}
