package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"marketpulse/apps/worker/features/stats"
	"marketpulse/apps/worker/internal/app"
	"marketpulse/apps/worker/internal/config"
	"marketpulse/apps/worker/internal/logger"
	"marketpulse/apps/worker/internal/middleware"
	"marketpulse/apps/worker/internal/notify"
)

func main() {
	// Initialize structured logger
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Database, migrations, NSQ
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	if deps.NSQProducer != nil {
		defer deps.NSQProducer.Stop()
	}

	// 3. Dead-letter consumer (alerting channel)
	if cfg.NSQLookupd != "" || cfg.NSQDHost != "" {
		consumer, err := notify.StartDeadLetterConsumer(cfg.NSQLookupd, cfg.NSQDHost)
		if err != nil {
			slog.Error("failed to start dead-letter consumer", "error", err)
		} else {
			defer consumer.Stop()
			slog.Info("dead-letter consumer connected", "topic", notify.TopicJobsDead)
		}
	}

	// 4. Ops HTTP surface
	if cfg.EnableAPI {
		statsRepo := stats.NewSQLRepo(deps.DB)
		statsHandler := stats.NewHandler(statsRepo, statsRepo, stats.NewListingCounter(deps.DB))

		mux := http.NewServeMux()
		mux.Handle("GET /stats", middleware.CorrelationID(http.HandlerFunc(statsHandler.GetStats)))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		srv := &http.Server{Addr: cfg.APIAddr, Handler: mux}
		go func() {
			slog.Info("ops server starting", "addr", cfg.APIAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("ops server failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Shutdown(context.Background())
		}()
	}

	// 5. Assemble and run the worker until signalled
	a, err := app.New(cfg, deps.DB, deps.NSQProducer)
	if err != nil {
		slog.Error("failed to assemble worker", "error", err)
		os.Exit(1)
	}

	slog.Info("worker starting", "worker_id", cfg.WorkerID, "job_type", cfg.JobType)
	if err := a.Run(ctx); err != nil {
		slog.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
