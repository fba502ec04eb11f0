package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// GQLV2 talks to the v2 GraphQL endpoint. It supports the richest filter
// set and is the preferred client for complex queries.
type GQLV2 struct {
	httpBase
	url   string
	token string
}

// NewGQLV2 constructs the client. An empty token means the caller should
// not construct the client at all; strategy selection treats absence as
// "not configured".
func NewGQLV2(url, token string, hc *http.Client, health *Health, timeout time.Duration) *GQLV2 {
	return &GQLV2{
		httpBase: newHTTPBase("gql_v2", SourceGQLV2, hc, health, timeout),
		url:      url,
		token:    token,
	}
}

// filterVars translates a SearchQuery into the upstream camelCase filter
// object. The keyword may be overridden by a morphological variant.
func (c *GQLV2) filterVars(q SearchQuery) map[string]any {
	filter := map[string]any{}
	if q.Keyword != "" {
		filter["nameDescriptionRu"] = q.Keyword
	}
	if q.CustomerBIN != "" {
		filter["customerBin"] = q.CustomerBIN
	}
	if len(q.StatusIDs) > 0 {
		filter["refLotStatusId"] = q.StatusIDs
	}
	if len(q.TradeMethodIDs) > 0 {
		filter["refTradeMethodsId"] = q.TradeMethodIDs
	}
	if q.AmountFrom != nil {
		filter["amountFrom"] = *q.AmountFrom
	}
	if q.AmountTo != nil {
		filter["amountTo"] = *q.AmountTo
	}
	if q.AnnouncementNumber != "" {
		filter["trdBuyNumberAnno"] = q.AnnouncementNumber
	}
	return filter
}

func (c *GQLV2) Search(ctx context.Context, q SearchQuery) ([]LotResult, error) {
	body := gqlRequest{
		Query: gqlSearchDoc("LotsFilter"),
		Variables: map[string]any{
			"filter": c.filterVars(q),
			"limit":  q.Limit,
			"offset": q.Offset,
		},
	}
	var out []LotResult
	err := retry(ctx, defaultAttempts, func(ctx context.Context) error {
		data, err := c.postGraphQL(ctx, c.url, c.token, body)
		if err != nil {
			return err
		}
		lots, err := decodeGQLLots(data)
		if err != nil {
			return c.protoErr(err)
		}
		out = lotsToResults(lots, SourceGQLV2)
		return nil
	})
	c.observe(err)
	if err != nil {
		log.Warn().Err(err).Str("client", c.name).Msg("upstream search failed")
		return nil, err
	}
	return out, nil
}

func (c *GQLV2) LotByNumber(ctx context.Context, lotNumber string) (*LotResult, error) {
	body := gqlRequest{
		Query: gqlSearchDoc("LotsFilter"),
		Variables: map[string]any{
			"filter": map[string]any{"lotNumber": lotNumber},
			"limit":  1,
			"offset": 0,
		},
	}
	var out *LotResult
	err := retry(ctx, defaultAttempts, func(ctx context.Context) error {
		data, err := c.postGraphQL(ctx, c.url, c.token, body)
		if err != nil {
			return err
		}
		lots, err := decodeGQLLots(data)
		if err != nil {
			return c.protoErr(err)
		}
		if len(lots) == 0 {
			return E(KindNotFound, c.name, fmt.Errorf("lot %s not found", lotNumber))
		}
		r := lots[0].toResult(SourceGQLV2)
		out = &r
		return nil
	})
	c.observe(err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeGQLLots pulls the lots array out of the data envelope.
func decodeGQLLots(data json.RawMessage) ([]gqlLot, error) {
	var payload struct {
		Lots []gqlLot `json:"lots"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode lots: %w", err)
	}
	return payload.Lots, nil
}

// lotsToResults maps parsed lots to canonical records, dropping anything
// that violates the LotResult invariants.
func lotsToResults(lots []gqlLot, source Source) []LotResult {
	out := make([]LotResult, 0, len(lots))
	for _, l := range lots {
		r := l.toResult(source)
		if !r.Valid() {
			continue
		}
		out = append(out, r)
	}
	return out
}
