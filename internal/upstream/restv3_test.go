package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRESTV3_Search_ParamsAndSnakeCase(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/lots" {
			t.Errorf("path = %q", r.URL.Path)
		}
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lots": []map[string]any{
				{
					"lot_number":       "L-10",
					"name_ru":          "Лак паркетный",
					"description_ru":   "для пола",
					"amount":           2500.5,
					"count":            3,
					"customer_bin":     "111111111111",
					"customer_name_ru": "КГУ Школа",
					"end_date":         "2026-10-01",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewRESTV3(srv.URL, "tok", srv.Client(), NewHealth(), 5*time.Second, nil)
	got, err := c.Search(context.Background(), SearchQuery{
		Keyword:        "лак",
		TradeMethodIDs: []int{1, 2, 5},
		Limit:          10,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	r := got[0]
	if r.LotNumber != "L-10" || r.LotName != "Лак паркетный" || r.Amount != 2500.5 {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Source != SourceRESTV3 {
		t.Fatalf("source = %q", r.Source)
	}
	if got := query["refTradeMethodsId"]; len(got) != 1 || got[0] != "1,2,5" {
		t.Fatalf("list param not comma-joined: %v", got)
	}
	if got := query["nameDescriptionRu"]; len(got) != 1 || got[0] != "лак" {
		t.Fatalf("keyword param = %v", got)
	}
}

func TestRESTV3_Search_EnvelopeShapes(t *testing.T) {
	lot := map[string]any{"lotNumber": "L-77", "nameRu": "Стол", "amount": 100}
	for _, tc := range []struct {
		name string
		body any
	}{
		{"items", map[string]any{"items": []any{lot}}},
		{"data", map[string]any{"data": []any{lot}}},
		{"bare array", []any{lot}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()
			c := NewRESTV3(srv.URL, "tok", srv.Client(), NewHealth(), 5*time.Second, nil)
			got, err := c.Search(context.Background(), SearchQuery{Keyword: "стол", Limit: 10})
			if err != nil {
				t.Fatalf("search error: %v", err)
			}
			if len(got) != 1 || got[0].LotNumber != "L-77" {
				t.Fatalf("unexpected results: %+v", got)
			}
		})
	}
}

func TestRESTV3_Search_ResolvesReferenceIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lots": []map[string]any{
				{
					"lot_number":           "L-20",
					"name_ru":              "Бумага",
					"amount":               500,
					"ref_trade_methods_id": 2,
					"ref_lot_status_id":    210,
				},
			},
		})
	}))
	defer srv.Close()

	c := NewRESTV3(srv.URL, "tok", srv.Client(), NewHealth(), 5*time.Second, nil)
	got, err := c.Search(context.Background(), SearchQuery{Keyword: "бумага", Limit: 10})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if got[0].TradeMethod != "Запрос ценовых предложений" {
		t.Fatalf("trade method not resolved: %q", got[0].TradeMethod)
	}
	if got[0].Status != "Опубликован" {
		t.Fatalf("status not resolved: %q", got[0].Status)
	}
}

func TestRESTV3_Search_DropsInvalidRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lots": []map[string]any{
				{"lot_number": "L-1", "name_ru": "", "amount": 100},
				{"lot_number": "L-2", "name_ru": "Стул", "amount": 100},
			},
		})
	}))
	defer srv.Close()

	c := NewRESTV3(srv.URL, "tok", srv.Client(), NewHealth(), 5*time.Second, nil)
	got, err := c.Search(context.Background(), SearchQuery{Keyword: "стул", Limit: 10})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(got) != 1 || got[0].LotNumber != "L-2" {
		t.Fatalf("invalid record not dropped: %+v", got)
	}
}
