package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zakupai/lotsearch/internal/refs"
)

// RESTV3 talks to the v3 REST endpoint. Filters become query-string
// parameters; list values are comma-joined. The response envelope varies
// between deployments (`lots`, `items`, `data`, or a bare array) and field
// names arrive in either snake_case or camelCase, so parsing is tolerant.
type RESTV3 struct {
	httpBase
	baseURL string
	token   string
	refs    *refs.Table
}

func NewRESTV3(baseURL, token string, hc *http.Client, health *Health, timeout time.Duration, tables *refs.Table) *RESTV3 {
	if tables == nil {
		tables = refs.Builtin()
	}
	return &RESTV3{
		httpBase: newHTTPBase("rest_v3", SourceRESTV3, hc, health, timeout),
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		refs:     tables,
	}
}

func (c *RESTV3) params(q SearchQuery) url.Values {
	v := url.Values{}
	if q.Keyword != "" {
		v.Set("nameDescriptionRu", q.Keyword)
	}
	if q.CustomerBIN != "" {
		v.Set("customerBin", q.CustomerBIN)
	}
	if len(q.StatusIDs) > 0 {
		v.Set("refLotStatusId", joinInts(q.StatusIDs))
	}
	if len(q.TradeMethodIDs) > 0 {
		v.Set("refTradeMethodsId", joinInts(q.TradeMethodIDs))
	}
	if q.AmountFrom != nil {
		v.Set("amountFrom", strconv.FormatFloat(*q.AmountFrom, 'f', -1, 64))
	}
	if q.AmountTo != nil {
		v.Set("amountTo", strconv.FormatFloat(*q.AmountTo, 'f', -1, 64))
	}
	if q.AnnouncementNumber != "" {
		v.Set("trdBuyNumberAnno", q.AnnouncementNumber)
	}
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func (c *RESTV3) Search(ctx context.Context, q SearchQuery) ([]LotResult, error) {
	u := c.baseURL + "/v3/lots?" + c.params(q).Encode()
	var out []LotResult
	err := retry(ctx, defaultAttempts, func(ctx context.Context) error {
		body, err := c.get(ctx, u)
		if err != nil {
			return err
		}
		items, err := restEnvelope(body)
		if err != nil {
			return c.protoErr(err)
		}
		out = make([]LotResult, 0, len(items))
		for _, raw := range items {
			r := c.parseLot(raw)
			if !r.Valid() {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	c.observe(err)
	if err != nil {
		log.Warn().Err(err).Str("client", c.name).Msg("upstream search failed")
		return nil, err
	}
	return out, nil
}

func (c *RESTV3) LotByNumber(ctx context.Context, lotNumber string) (*LotResult, error) {
	u := c.baseURL + "/v3/lots?" + url.Values{"lotNumber": {lotNumber}, "limit": {"1"}}.Encode()
	var out *LotResult
	err := retry(ctx, defaultAttempts, func(ctx context.Context) error {
		body, err := c.get(ctx, u)
		if err != nil {
			return err
		}
		items, err := restEnvelope(body)
		if err != nil {
			return c.protoErr(err)
		}
		if len(items) == 0 {
			return E(KindNotFound, c.name, fmt.Errorf("lot %s not found", lotNumber))
		}
		r := c.parseLot(items[0])
		out = &r
		return nil
	})
	c.observe(err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTV3) get(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, c.netErr(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, c.netErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, c.classifyStatus(resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.netErr(err)
	}
	return body, nil
}

// restEnvelope accepts {"lots":[...]}, {"items":[...]}, {"data":[...]} or a
// bare JSON array.
func restEnvelope(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var items []map[string]any
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		return items, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	for _, key := range []string{"lots", "items", "data"} {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		return items, nil
	}
	return nil, fmt.Errorf("no recognised results envelope")
}

// parseLot normalizes one loosely-typed item. Every field is looked up
// under both its snake_case and camelCase spellings.
func (c *RESTV3) parseLot(m map[string]any) LotResult {
	r := LotResult{
		LotNumber:          pickStr(m, "lot_number", "lotNumber"),
		AnnouncementNumber: pickStr(m, "trd_buy_number_anno", "trdBuyNumberAnno", "announcement_number"),
		LotName:            pickStr(m, "name_ru", "nameRu", "lot_name", "lotName"),
		Description:        pickStr(m, "description_ru", "descriptionRu", "description"),
		CustomerName:       pickStr(m, "customer_name_ru", "customerNameRu", "customer_name"),
		CustomerBIN:        pickStr(m, "customer_bin", "customerBin"),
		Amount:             pickNum(m, "amount"),
		Currency:           "KZT",
		Quantity:           pickNum(m, "count", "quantity"),
		TradeMethod:        pickStr(m, "trade_method", "tradeMethod"),
		Status:             pickStr(m, "status"),
		EndDate:            pickStr(m, "end_date", "endDate"),
		URL:                pickStr(m, "url"),
		Source:             SourceRESTV3,
	}
	r.LotName = strings.TrimSpace(r.LotName)
	// Some deployments return reference IDs instead of display names.
	if r.TradeMethod == "" {
		if id := pickNum(m, "ref_trade_methods_id", "refTradeMethodsId"); id > 0 {
			r.TradeMethod = c.refs.TradeMethod(int(id))
		}
	}
	if r.Status == "" {
		if id := pickNum(m, "ref_lot_status_id", "refLotStatusId"); id > 0 {
			r.Status = c.refs.LotStatus(int(id))
		}
	}
	return r
}

func pickStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

func pickNum(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
