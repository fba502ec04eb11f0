package upstream

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
)

// Webhook relays a search to a configured URL and accepts results already
// shaped like LotResult. The relay is optional infrastructure; without a
// configured URL the client is simply never constructed.
type Webhook struct {
	httpBase
	url string
}

func NewWebhook(url string, hc *http.Client, health *Health, timeout time.Duration) *Webhook {
	return &Webhook{
		httpBase: newHTTPBase("webhook", SourceWebhook, hc, health, timeout),
		url:      url,
	}
}

type webhookRequest struct {
	Query           string `json:"query"`
	NormalizedQuery string `json:"normalized_query"`
	Limit           int    `json:"limit"`
}

type webhookResponse struct {
	Results []LotResult `json:"results"`
}

func (c *Webhook) Search(ctx context.Context, q SearchQuery) ([]LotResult, error) {
	out, err := c.relay(ctx, q.Keyword, q.Limit)
	if err != nil {
		log.Warn().Err(err).Str("client", c.name).Msg("upstream search failed")
		return nil, err
	}
	return out, nil
}

// LotByNumber has no native lookup on the relay side: the lot number is
// sent as the query and the relayed results are filtered for it.
func (c *Webhook) LotByNumber(ctx context.Context, lotNumber string) (*LotResult, error) {
	results, err := c.relay(ctx, lotNumber, DefaultLimit)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.LotNumber == lotNumber {
			return &r, nil
		}
	}
	return nil, E(KindNotFound, c.name, fmt.Errorf("lot %s not found", lotNumber))
}

func (c *Webhook) relay(ctx context.Context, query string, limit int) ([]LotResult, error) {
	body := webhookRequest{
		Query:           query,
		NormalizedQuery: strings.ToLower(strings.TrimSpace(query)),
		Limit:           limit,
	}
	var out []LotResult
	err := retry(ctx, defaultAttempts, func(ctx context.Context) error {
		payload, err := json.Marshal(body)
		if err != nil {
			return c.protoErr(err)
		}
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return c.netErr(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(req)
		if err != nil {
			return c.netErr(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, resp.Body)
			return c.classifyStatus(resp.StatusCode)
		}
		var envelope webhookResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return c.protoErr(fmt.Errorf("decode response: %w", err))
		}
		out = make([]LotResult, 0, len(envelope.Results))
		for _, r := range envelope.Results {
			r.Source = SourceWebhook
			if r.Currency == "" {
				r.Currency = "KZT"
			}
			if !r.Valid() {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	c.observe(err)
	if err != nil {
		return nil, err
	}
	return out, nil
}
