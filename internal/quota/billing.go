package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zakupai/lotsearch/internal/upstream"
)

// BillingClient talks to the external quota service. The service validates
// API keys, records usage, and provisions new keys.
type BillingClient struct {
	baseURL string
	hc      *http.Client

	// FailOpen controls the degradation policy when the quota service
	// itself is unreachable: read-only diagnostics keep working, paid
	// endpoints block.
	FailOpen bool
}

func NewBillingClient(baseURL string, hc *http.Client, failOpen bool) *BillingClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &BillingClient{baseURL: strings.TrimRight(baseURL, "/"), hc: hc, FailOpen: failOpen}
}

// Validation is the quota decision for one request.
type Validation struct {
	Valid      bool   `json:"valid"`
	Plan       string `json:"plan"`
	UsageCount int    `json:"usage_count"`
	UsageLimit int    `json:"usage_limit"`
	Error      string `json:"error,omitempty"`
}

// ValidateKey checks the key against the billing service. A service
// failure follows the FailOpen policy: fail-open returns a permissive
// validation, fail-closed returns the transport error.
func (c *BillingClient) ValidateKey(ctx context.Context, apiKey, endpoint string, cost int) (Validation, error) {
	payload := map[string]any{"api_key": apiKey, "endpoint": endpoint, "cost": cost}
	var v Validation
	if err := c.post(ctx, "/billing/validate_key", payload, &v); err != nil {
		if c.FailOpen {
			log.Warn().Err(err).Msg("quota service unreachable, failing open")
			return Validation{Valid: true, Plan: "unknown"}, nil
		}
		return Validation{}, upstream.E(upstream.KindNetwork, "billing", err)
	}
	return v, nil
}

// LogUsage is best-effort and fire-and-forget: a failed usage log never
// fails the request it accounts for.
func (c *BillingClient) LogUsage(apiKey, endpoint string, requests int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		payload := map[string]any{"api_key": apiKey, "endpoint": endpoint, "requests": requests}
		var out struct {
			Logged bool `json:"logged"`
		}
		if err := c.post(ctx, "/billing/usage", payload, &out); err != nil {
			log.Debug().Err(err).Msg("usage log failed")
		}
	}()
}

// KeyGrant is the response to key creation.
type KeyGrant struct {
	APIKey string `json:"api_key"`
	Plan   string `json:"plan"`
}

// CreateKey provisions a key for a chat user.
func (c *BillingClient) CreateKey(ctx context.Context, tgID int64, email string) (KeyGrant, error) {
	payload := map[string]any{"tg_id": tgID}
	if email != "" {
		payload["email"] = email
	}
	var grant KeyGrant
	if err := c.post(ctx, "/billing/create_key", payload, &grant); err != nil {
		return KeyGrant{}, upstream.E(upstream.KindNetwork, "billing", err)
	}
	return grant, nil
}

func (c *BillingClient) post(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("billing status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
