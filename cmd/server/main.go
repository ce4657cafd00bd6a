package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dgallion1/notiondocs/internal/api"
	"github.com/dgallion1/notiondocs/internal/app"
	"github.com/dgallion1/notiondocs/internal/config"
	"github.com/dgallion1/notiondocs/internal/metrics"
	"github.com/dgallion1/notiondocs/internal/pipeline"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	// Initialize components.
	a, err := app.New(cfg, recorder, log)
	if err != nil {
		log.Error("initialize", "error", err)
		os.Exit(1)
	}
	if n, err := a.Worker.Reindex(ctx); err != nil {
		log.Warn("index existing site", "error", err)
	} else {
		log.Info("indexed existing site", "sections", n)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(pipeline.Options{
		WorkerCount:     cfg.WorkerCount,
		MaxQueueSize:    cfg.MaxQueueSize,
		JobTTL:          cfg.JobTTL,
		RebuildInterval: cfg.RebuildInterval,
	}, a.Worker, log)
	if err := orch.Start(ctx); err != nil {
		log.Error("start pipeline", "error", err)
		os.Exit(1)
	}

	if cfg.BuildOnStart {
		if job, err := orch.Trigger(pipeline.TriggerStartup); err != nil {
			log.Warn("startup build not queued", "error", err)
		} else {
			log.Info("startup build queued", "job_id", job.ID)
		}
	}

	if cfg.WatchSource && a.File != nil {
		log.Info("rebuilding on source changes", "path", a.File.Path())
		go func() {
			err := a.File.Watch(ctx, 2*time.Second, func() {
				if job, err := orch.Trigger(pipeline.TriggerWatch); err != nil {
					log.Warn("rebuild on change not queued", "error", err)
				} else {
					log.Info("source changed, rebuild queued", "job_id", job.ID)
				}
			})
			if err != nil {
				log.Error("watch source", "error", err)
			}
		}()
	}

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Builds:   orch,
		Store:    a.Store,
		Search:   a.Indexer,
		Docs:     a.Docs,
		Stats:    a.SourceStats(),
		Recorder: recorder,
		Metrics:  metrics.HTTPHandler(reg),
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		cancel()
		if err := a.Close(); err != nil {
			log.Warn("close store", "error", err)
		}
	}()

	log.Info("starting notiondocs", "port", cfg.Port, "source", cfg.Source, "sink", cfg.Sink)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
