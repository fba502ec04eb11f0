// Package httpapi is the HTTP adapter in front of the search core. The
// core stays callable in-process; this router only translates JSON.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/zakupai/lotsearch/internal/app"
	"github.com/zakupai/lotsearch/internal/health"
)

// NewRouter mounts the API, probe, and scrape routes with the middleware
// chain: request ID, real IP, logger, recoverer, CORS, and a coarse
// per-IP throttle ahead of the per-user windows inside the service.
func NewRouter(svc *app.Service, checkers ...health.Checker) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Api-Key"},
	}))
	r.Use(httprate.LimitByIP(120, time.Minute))

	h := newHandlers(svc)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", h.search)
		r.Get("/lots/{number}", h.lotByNumber)
		r.Post("/keys", h.createKey)
		r.Route("/stats", func(r chi.Router) {
			r.Get("/popular", h.popularQueries)
			r.Get("/system", h.systemStats)
			r.Get("/users/top", h.topUsers)
			r.Get("/users/{id}", h.userAnalytics)
		})
	})

	probe := health.New(checkers...)
	r.Get("/healthz", probe.Healthz)
	r.Get("/readyz", probe.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("http request")
	})
}
