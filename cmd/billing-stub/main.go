// billing-stub is a local stand-in for the external quota service. It
// accepts every key except ones prefixed "blocked-", tracks usage in
// memory, and hands out keys on demand.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
)

type usage struct {
	mu     sync.Mutex
	counts map[string]int
}

func main() {
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8091"
	}
	u := &usage{counts: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/billing/validate_key", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			APIKey   string `json:"api_key"`
			Endpoint string `json:"endpoint"`
			Cost     int    `json:"cost"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(req.APIKey, "blocked-") {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"valid": false, "plan": "free", "error": "key blocked",
			})
			return
		}
		u.mu.Lock()
		count := u.counts[req.APIKey]
		u.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"valid": true, "plan": "dev", "usage_count": count, "usage_limit": 10000,
		})
	})
	mux.HandleFunc("/billing/usage", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			APIKey   string `json:"api_key"`
			Requests int    `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		u.mu.Lock()
		u.counts[req.APIKey] += req.Requests
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"logged": true})
	})
	mux.HandleFunc("/billing/create_key", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			TgID int64 `json:"tg_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"api_key": fmt.Sprintf("dev-%d", req.TgID), "plan": "dev",
		})
	})

	log.Printf("billing stub listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
