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

	"github.com/pulsehq/pulse-backend/internal/bootstrap"
	"github.com/pulsehq/pulse-backend/internal/config"
	"github.com/pulsehq/pulse-backend/internal/core/domain"
	"github.com/pulsehq/pulse-backend/internal/observability/logging"
	"github.com/pulsehq/pulse-backend/internal/observability/metrics"
	"github.com/pulsehq/pulse-backend/internal/realtime"
)

const serviceName = "pulse-worker"

func main() {
	cfg := config.Load()
	logging.Init(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	go serveMetrics(ctx, cfg.WorkerMetricsPort, workerMetrics)

	notifier := realtime.NewQueueNotifier(app.Queue)
	processor := app.NewProcessor(notifier)

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeVideoUploaded(ctx, func(handlerCtx context.Context, videoID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WorkerProcessTimeout)
		defer cancel()

		if video, err := app.Repo.GetByID(processCtx, videoID); err == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(video.CreatedAt))
		}

		workerMetrics.StartVideo()
		start := time.Now()
		processErr := processor.ProcessByID(processCtx, videoID)
		workerMetrics.FinishVideo(serviceName, time.Since(start), processErr)

		if processErr == nil {
			recordVerdict(processCtx, app, workerMetrics, videoID)
		}
		return processErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}

func recordVerdict(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, videoID string) {
	video, err := app.Repo.GetByID(ctx, videoID)
	if err != nil || video.ProcessingStatus != domain.ProcessingCompleted {
		return
	}
	m.RecordVerdict(serviceName, string(video.SensitivityStatus), string(video.VerdictSource))
}

func serveMetrics(ctx context.Context, port string, m *metrics.WorkerMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("worker metrics listening", "port", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("worker metrics server failed", "error", err)
	}
}
