package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packlane/orderflow/pkg/logger"
)

const readinessTimeout = 5 * time.Second

func newRouter(logg *logger.Logger, rt *runtime, promRegistry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), readinessTimeout)
		defer cancel()

		if err := rt.db.Ping(ctx); err != nil {
			logg.Error(ctx, "readiness: database ping failed", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rt.redis.Ping(ctx); err != nil {
			logg.Error(ctx, "readiness: redis ping failed", err)
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	return r
}
