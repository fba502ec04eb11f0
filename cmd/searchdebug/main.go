package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/zakupai/lotsearch/internal/upstream"
)

// searchdebug fires one query at the REST v3 endpoint and prints what
// comes back, bypassing cache, morphology, and quota.
func main() {
	base := os.Getenv("REST_V3_URL")
	if base == "" {
		base = "https://ows.goszakup.gov.kz"
	}
	token := os.Getenv("GQL_V3_TOKEN")
	q := "лак"
	if len(os.Args) > 1 {
		q = os.Args[1]
	}
	hc := &http.Client{Timeout: 20 * time.Second}
	client := upstream.NewRESTV3(base, token, hc, upstream.NewHealth(), 20*time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	res, err := client.Search(ctx, upstream.SearchQuery{Keyword: q, Limit: 5})
	fmt.Println("err:", err)
	for i, r := range res {
		fmt.Printf("%d. %s | %s (%.2f %s)\n", i+1, r.LotNumber, r.LotName, r.Amount, r.Currency)
	}
}
