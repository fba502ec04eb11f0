package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// GQLV3 talks to the v3 GraphQL endpoint. The dialect differs from v2 only
// in the filter type name and the additional date-range fields.
type GQLV3 struct {
	httpBase
	url   string
	token string
}

func NewGQLV3(url, token string, hc *http.Client, health *Health, timeout time.Duration) *GQLV3 {
	return &GQLV3{
		httpBase: newHTTPBase("gql_v3", SourceGQLV3, hc, health, timeout),
		url:      url,
		token:    token,
	}
}

func (c *GQLV3) filterVars(q SearchQuery) map[string]any {
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
	if q.PublishDateFrom != "" {
		filter["publishDateFrom"] = q.PublishDateFrom
	}
	if q.PublishDateTo != "" {
		filter["publishDateTo"] = q.PublishDateTo
	}
	if q.EndDateFrom != "" {
		filter["endDateFrom"] = q.EndDateFrom
	}
	if q.EndDateTo != "" {
		filter["endDateTo"] = q.EndDateTo
	}
	return filter
}

func (c *GQLV3) Search(ctx context.Context, q SearchQuery) ([]LotResult, error) {
	body := gqlRequest{
		Query: gqlSearchDoc("LotsFilterInput"),
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
		out = lotsToResults(lots, SourceGQLV3)
		return nil
	})
	c.observe(err)
	if err != nil {
		log.Warn().Err(err).Str("client", c.name).Msg("upstream search failed")
		return nil, err
	}
	return out, nil
}

func (c *GQLV3) LotByNumber(ctx context.Context, lotNumber string) (*LotResult, error) {
	body := gqlRequest{
		Query: gqlSearchDoc("LotsFilterInput"),
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
		r := lots[0].toResult(SourceGQLV3)
		out = &r
		return nil
	})
	c.observe(err)
	if err != nil {
		return nil, err
	}
	return out, nil
}
