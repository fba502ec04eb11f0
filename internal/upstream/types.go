package upstream

import (
	"context"
	"fmt"
	"strings"
)

// Source identifies which upstream API produced a result.
type Source string

const (
	SourceGQLV2   Source = "gql_v2"
	SourceGQLV3   Source = "gql_v3"
	SourceRESTV3  Source = "rest_v3"
	SourceWebhook Source = "webhook"
)

// LotResult is the canonical normalized lot record. Every client parses its
// native payload into this shape; nothing downstream ever sees upstream JSON.
type LotResult struct {
	LotNumber          string  `json:"lot_number"`
	AnnouncementNumber string  `json:"announcement_number"`
	LotName            string  `json:"lot_name"`
	Description        string  `json:"description"`
	CustomerName       string  `json:"customer_name"`
	CustomerBIN        string  `json:"customer_bin"`
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency"`
	Quantity           float64 `json:"quantity"`
	TradeMethod        string  `json:"trade_method"`
	Status             string  `json:"status"`
	EndDate            string  `json:"end_date"`
	URL                string  `json:"url"`
	Source             Source  `json:"source"`
}

// IdentityKey implements the dedupe identity: the lot number when present,
// otherwise the (customer BIN, lot name, amount) triple.
func (r LotResult) IdentityKey() string {
	if n := strings.TrimSpace(r.LotNumber); n != "" {
		return "n:" + n
	}
	return fmt.Sprintf("t:%s|%s|%.2f", r.CustomerBIN, strings.TrimSpace(r.LotName), r.Amount)
}

// Valid reports whether the record satisfies the canonical invariants.
func (r LotResult) Valid() bool {
	if strings.TrimSpace(r.LotName) == "" {
		return false
	}
	if r.Amount < 0 || r.Quantity < 0 {
		return false
	}
	switch r.Source {
	case SourceGQLV2, SourceGQLV3, SourceRESTV3, SourceWebhook:
		return true
	}
	return false
}

// SearchQuery is the request every client accepts. Clients ignore fields
// their protocol cannot express.
type SearchQuery struct {
	Keyword            string
	CustomerBIN        string
	TradeMethodIDs     []int
	StatusIDs          []int
	AmountFrom         *float64
	AmountTo           *float64
	AnnouncementNumber string
	PublishDateFrom    string
	PublishDateTo      string
	EndDateFrom        string
	EndDateTo          string
	Limit              int
	Offset             int
}

const (
	MaxKeywordLen = 200
	MaxLimit      = 100
	DefaultLimit  = 10
)

// Normalize trims the keyword, defaults the limit, and clamps it to [1,100].
func (q *SearchQuery) Normalize() {
	q.Keyword = strings.TrimSpace(q.Keyword)
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// Validate rejects malformed input before any upstream work happens.
func (q SearchQuery) Validate() error {
	if len([]rune(q.Keyword)) > MaxKeywordLen {
		return E(KindValidation, "", fmt.Errorf("keyword longer than %d characters", MaxKeywordLen))
	}
	if q.CustomerBIN != "" && !ValidBIN(q.CustomerBIN) {
		return E(KindValidation, "", fmt.Errorf("customer BIN must be 12 digits, got %q", q.CustomerBIN))
	}
	if q.AmountFrom != nil && *q.AmountFrom < 0 {
		return E(KindValidation, "", fmt.Errorf("amount range lower bound is negative"))
	}
	if q.AmountFrom != nil && q.AmountTo != nil && *q.AmountFrom > *q.AmountTo {
		return E(KindValidation, "", fmt.Errorf("amount range is inverted"))
	}
	if q.Keyword == "" && q.ActiveFilters() == 0 {
		return E(KindValidation, "", fmt.Errorf("empty query: no keyword and no filters"))
	}
	return nil
}

// ActiveFilters counts non-empty top-level fields, excluding limit and
// offset. The strategy selector classifies query complexity with it.
func (q SearchQuery) ActiveFilters() int {
	n := 0
	if q.Keyword != "" {
		n++
	}
	if q.CustomerBIN != "" {
		n++
	}
	if len(q.TradeMethodIDs) > 0 {
		n++
	}
	if len(q.StatusIDs) > 0 {
		n++
	}
	if q.AmountFrom != nil || q.AmountTo != nil {
		n++
	}
	if q.AnnouncementNumber != "" {
		n++
	}
	if q.PublishDateFrom != "" || q.PublishDateTo != "" {
		n++
	}
	if q.EndDateFrom != "" || q.EndDateTo != "" {
		n++
	}
	return n
}

// ValidBIN reports whether s is a 12-digit Kazakh business identification
// number.
func ValidBIN(s string) bool {
	if len(s) != 12 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Client is the uniform capability set every upstream adapter implements.
type Client interface {
	// Search returns results in upstream order. Zero results is not an
	// error.
	Search(ctx context.Context, q SearchQuery) ([]LotResult, error)
	// LotByNumber resolves a single lot. A missing lot returns a
	// KindNotFound error.
	LotByNumber(ctx context.Context, lotNumber string) (*LotResult, error)
	Name() string
	Source() Source
}
