// Package cache provides the short-TTL result cache keyed on the
// normalized query. Two backends exist: an in-process TTL+LRU map and a
// shared Redis store. Both tolerate racing writers; the last writer wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zakupai/lotsearch/internal/upstream"
)

// DefaultTTL is the default entry lifetime of 300 seconds.
const DefaultTTL = 300 * time.Second

// Cache is the minimum capability set the orchestrator needs. Get misses
// are not errors; backend failures degrade to a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]upstream.LotResult, bool)
	Set(ctx context.Context, key string, results []upstream.LotResult, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

var keyFold = cases.Lower(language.Russian)

// Key derives the cache key from the case-folded keyword plus every filter,
// the limit, and the offset, digested so backends see a fixed-size token.
func Key(q upstream.SearchQuery) string {
	var b strings.Builder
	b.WriteString(keyFold.String(strings.TrimSpace(q.Keyword)))
	b.WriteString("|bin=" + q.CustomerBIN)
	b.WriteString("|tm=" + joinSorted(q.TradeMethodIDs))
	b.WriteString("|st=" + joinSorted(q.StatusIDs))
	if q.AmountFrom != nil {
		fmt.Fprintf(&b, "|af=%.2f", *q.AmountFrom)
	}
	if q.AmountTo != nil {
		fmt.Fprintf(&b, "|at=%.2f", *q.AmountTo)
	}
	b.WriteString("|anno=" + q.AnnouncementNumber)
	b.WriteString("|pd=" + q.PublishDateFrom + ".." + q.PublishDateTo)
	b.WriteString("|ed=" + q.EndDateFrom + ".." + q.EndDateTo)
	fmt.Fprintf(&b, "|l=%d|o=%d", q.Limit, q.Offset)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func joinSorted(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
