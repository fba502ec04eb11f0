package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// gqlRequest is the standard GraphQL POST body.
type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// gqlLot mirrors the nested TrdBuy/RefLotsStatus/RefTradeMethods structure
// both GraphQL dialects return for a lot.
type gqlLot struct {
	LotNumber      string  `json:"lotNumber"`
	NameRu         string  `json:"nameRu"`
	DescriptionRu  string  `json:"descriptionRu"`
	Amount         float64 `json:"amount"`
	Count          float64 `json:"count"`
	CustomerNameRu string  `json:"customerNameRu"`
	CustomerBin    string  `json:"customerBin"`
	RefLotsStatus  *struct {
		NameRu string `json:"nameRu"`
	} `json:"RefLotsStatus"`
	RefTradeMethods *struct {
		NameRu string `json:"nameRu"`
	} `json:"RefTradeMethods"`
	TrdBuy *struct {
		NumberAnno string `json:"numberAnno"`
		NameRu     string `json:"nameRu"`
		EndDate    string `json:"endDate"`
	} `json:"TrdBuy"`
}

func (l gqlLot) toResult(source Source) LotResult {
	r := LotResult{
		LotNumber:    strings.TrimSpace(l.LotNumber),
		LotName:      strings.TrimSpace(l.NameRu),
		Description:  strings.TrimSpace(l.DescriptionRu),
		CustomerName: strings.TrimSpace(l.CustomerNameRu),
		CustomerBIN:  strings.TrimSpace(l.CustomerBin),
		Amount:       l.Amount,
		Currency:     "KZT",
		Quantity:     l.Count,
		Source:       source,
	}
	if l.RefLotsStatus != nil {
		r.Status = l.RefLotsStatus.NameRu
	}
	if l.RefTradeMethods != nil {
		r.TradeMethod = l.RefTradeMethods.NameRu
	}
	if l.TrdBuy != nil {
		r.AnnouncementNumber = l.TrdBuy.NumberAnno
		r.EndDate = l.TrdBuy.EndDate
	}
	return r
}

// gqlLotFields is the selection set shared by both dialects.
const gqlLotFields = `
    lotNumber
    nameRu
    descriptionRu
    amount
    count
    customerNameRu
    customerBin
    RefLotsStatus { nameRu }
    RefTradeMethods { nameRu }
    TrdBuy { numberAnno nameRu endDate }`

// gqlSearchDoc builds the single query document per request; only the
// filter type name differs between the v2 and v3 dialects.
func gqlSearchDoc(filterType string) string {
	return fmt.Sprintf(`query ($filter: %s, $limit: Int, $offset: Int) {
  lots: Lots(filter: $filter, limit: $limit, offset: $offset) {%s
  }
}`, filterType, gqlLotFields)
}

// postGraphQL issues one GraphQL request and decodes the envelope. A
// GraphQL errors array is a protocol failure and is never retried.
func (b *httpBase) postGraphQL(ctx context.Context, url, token string, body gqlRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, b.protoErr(fmt.Errorf("encode request: %w", err))
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, b.netErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := b.hc.Do(req)
	if err != nil {
		return nil, b.netErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, b.classifyStatus(resp.StatusCode)
	}
	var envelope gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, b.protoErr(fmt.Errorf("decode response: %w", err))
	}
	if len(envelope.Errors) > 0 {
		return nil, b.protoErr(fmt.Errorf("graphql: %s", envelope.Errors[0].Message))
	}
	return envelope.Data, nil
}
