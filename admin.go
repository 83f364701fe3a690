package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AdminServer serves the management HTTP surface: /health, /stats and a
// Prometheus /metrics endpoint. It lives beside the data plane and never
// touches its hot path beyond reading shared counters.
type AdminServer struct {
	addr    string
	store   *Store
	index   *EmbeddingIndex
	metrics *Metrics
	logger  *zap.Logger
	started time.Time
	httpSrv *http.Server
}

// NewAdminServer builds the admin surface and registers the Prometheus
// exporter on a private registry.
func NewAdminServer(addr string, store *Store, index *EmbeddingIndex, metrics *Metrics, logger *zap.Logger) *AdminServer {
	a := &AdminServer{
		addr:    addr,
		store:   store,
		index:   index,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "admin")),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewExporter(metrics, store, index))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/stats", a.handleStats)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	a.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return a
}

// Run serves until the context is cancelled.
func (a *AdminServer) Run(ctx context.Context) error {
	a.started = time.Now()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.httpSrv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("admin http listening", zap.String("addr", a.addr))
	if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		// The data plane stays up if the admin port is taken.
		a.logger.Error("admin http failed", zap.Error(err))
	}
	return nil
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(a.started).Seconds()),
	})
}

func (a *AdminServer) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := a.metrics.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":    snap,
		"keys":       a.store.Len(),
		"shards":     a.store.NumShards(),
		"embeddings": a.index.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
