package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/pulsehq/pulse-backend/internal/adapters/http"
	"github.com/pulsehq/pulse-backend/internal/bootstrap"
	"github.com/pulsehq/pulse-backend/internal/config"
	"github.com/pulsehq/pulse-backend/internal/observability/logging"
	"github.com/pulsehq/pulse-backend/internal/observability/metrics"
	"github.com/pulsehq/pulse-backend/internal/realtime"
)

func main() {
	cfg := config.Load()
	logging.Init("pulse-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	hub := realtime.NewHub()
	go func() { _ = hub.Run(ctx) }()
	go func() {
		if err := realtime.RunBridge(ctx, app.Queue, hub); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("status bridge stopped", "error", err)
		}
	}()

	serverMetrics := metrics.NewHTTPServerMetrics("pulse-api")
	router := httpadapter.NewRouter(
		app.IngestUC,
		app.CatalogUC,
		app.Store,
		hub,
		serverMetrics,
		httpadapter.Traffic{
			RateLimitRPS:     cfg.APIRateLimitRPS,
			RateLimitBurst:   cfg.APIRateLimitBurst,
			MaxInFlight:      cfg.APIMaxInFlight,
			BackpressureWait: cfg.APIBackpressureWait,
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", serverMetrics.Handler())
	mux.Handle("/", router.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown", "error", err)
	}
}
