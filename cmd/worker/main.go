package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asporlabs/aspor-intelligence/internal/bootstrap"
	"github.com/asporlabs/aspor-intelligence/internal/config"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
	"github.com/asporlabs/aspor-intelligence/internal/observability/logging"
	"github.com/asporlabs/aspor-intelligence/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	go serveMetrics(ctx, cfg.WorkerMetricsPort, workerMetrics)

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRunJobs(ctx, func(handlerCtx context.Context, job ports.RunJob) error {
		jobCtx, cancel := context.WithTimeout(handlerCtx, cfg.JobTimeout)
		defer cancel()

		workerMetrics.StartJob()
		start := time.Now()

		if !job.PublishedAt.IsZero() {
			workerMetrics.ObserveQueueLag("worker", time.Since(job.PublishedAt))
		}

		processErr := app.JobsUC.ProcessRunJob(jobCtx, job)
		workerMetrics.FinishJob("worker", string(job.Kind), time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		slog.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, port string, workerMetrics *metrics.WorkerMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("worker metrics server error", "error", err)
	}
}
