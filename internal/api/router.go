// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/permitwatch/permitwatch/internal/config"
	"github.com/permitwatch/permitwatch/internal/metrics"
)

// Router wires the HTTP handler set into a chi mux.
type Router struct {
	cfg     *config.ServerConfig
	handler *Handler
}

// NewRouter creates the API router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *Router {
	return &Router{cfg: cfg, handler: handler}
}

// Setup returns the fully configured HTTP handler.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	corsOrigins := rt.cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health stays outside the rate limit so probes never get throttled.
	r.Get("/api/v1/health", rt.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		reqs, window := rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow
		if reqs <= 0 {
			reqs = 300
		}
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(reqs, window))

		r.Route("/permits", func(r chi.Router) {
			r.Get("/", rt.handler.Permits)
			r.Get("/stats", rt.handler.PermitStats)
			r.Get("/export", rt.handler.ExportPermits)
			r.Post("/scrape", rt.handler.Scrape)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", rt.handler.ListSubscriptions)
			r.Post("/", rt.handler.CreateSubscription)
			r.Get("/{id}", rt.handler.GetSubscription)
			r.Put("/{id}", rt.handler.UpdateSubscription)
			r.Delete("/{id}", rt.handler.DeleteSubscription)
		})
	})

	return r
}

// requestMetrics records per-route request counts and latency. The chi route
// pattern keeps the endpoint label cardinality bounded.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		metrics.RecordAPIRequest(r.Method, endpoint, ww.Status(), time.Since(start))
	})
}
