// The triage-worker process runs the background diagnosis pipeline: it
// connects to Redis and Temporal, registers the diagnosis workflow and
// activities, and serves Prometheus metrics.
//
// Configuration comes from the environment:
//
//	VETTRIAGE_REDIS_ADDR      Redis address (default localhost:6379)
//	VETTRIAGE_TEMPORAL_HOST   Temporal frontend (default localhost:7233)
//	VETTRIAGE_DIAG_ENDPOINT   diagnostic service base URL (required)
//	VETTRIAGE_DIAG_API_KEY    diagnostic service API key
//	VETTRIAGE_DIAG_MODEL      diagnostic model id (default vet-diag-1)
//	VETTRIAGE_METRICS_ADDR    metrics listen address (default :9090)
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/pasturelab/vettriage/internal/diag"
	"github.com/pasturelab/vettriage/internal/metrics"
	"github.com/pasturelab/vettriage/internal/store/redisstore"
	"github.com/pasturelab/vettriage/internal/worker"
	"github.com/pasturelab/vettriage/internal/workflow"
	"github.com/pasturelab/vettriage/pkg/events"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	redisClient := redis.NewClient(&redis.Options{
		Addr: envOr("VETTRIAGE_REDIS_ADDR", "localhost:6379"),
	})
	defer func() { _ = redisClient.Close() }()

	st := redisstore.New(redisClient)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		return err
	}

	prom := metrics.NewPrometheus()

	diagCfg := diag.DefaultConfig()
	diagCfg.Endpoint = os.Getenv("VETTRIAGE_DIAG_ENDPOINT")
	diagCfg.APIKey = os.Getenv("VETTRIAGE_DIAG_API_KEY")
	diagCfg.Model = envOr("VETTRIAGE_DIAG_MODEL", "vet-diag-1")
	diagClient, err := worker.InitializeDiagClient(diagCfg, logger, prom)
	if err != nil {
		return err
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort: envOr("VETTRIAGE_TEMPORAL_HOST", "localhost:7233"),
		Logger:   slogAdapter{logger},
	})
	if err != nil {
		return err
	}
	defer temporalClient.Close()

	go serveMetrics(envOr("VETTRIAGE_METRICS_ADDR", ":9090"), prom, logger)

	w := sdkworker.New(temporalClient, workflow.TaskQueue, sdkworker.Options{})
	worker.RegisterAll(w, st, diagClient, events.NewNoOpEventSink(), logger)

	logger.Info("triage worker starting", "task_queue", workflow.TaskQueue)
	return w.Run(sdkworker.InterruptCh())
}

func serveMetrics(addr string, prom *metrics.Prometheus, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// slogAdapter bridges slog to Temporal's logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Debug(msg string, keyvals ...any) { a.l.Debug(msg, keyvals...) }
func (a slogAdapter) Info(msg string, keyvals ...any)  { a.l.Info(msg, keyvals...) }
func (a slogAdapter) Warn(msg string, keyvals ...any)  { a.l.Warn(msg, keyvals...) }
func (a slogAdapter) Error(msg string, keyvals ...any) { a.l.Error(msg, keyvals...) }
