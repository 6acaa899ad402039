package app

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketpulse/apps/worker/features/listing"
	"marketpulse/apps/worker/features/publish"
	"marketpulse/apps/worker/features/queue"
	"marketpulse/apps/worker/features/rates"
	"marketpulse/apps/worker/features/search"
	"marketpulse/apps/worker/internal/backoff"
	"marketpulse/apps/worker/internal/breaker"
	"marketpulse/apps/worker/internal/config"
	"marketpulse/apps/worker/internal/runner"
	"marketpulse/apps/worker/internal/upstream"
)

// App is the composed worker: the queue runner plus the timer-driven
// listing and exchange-rate syncs.
type App struct {
	Runner   *runner.Runner
	Listings *listing.Syncer
	Rates    *rates.Service

	cfg *config.Config
}

func New(cfg *config.Config, db *sql.DB, pub runner.Publisher) (*App, error) {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	httpClient := upstream.NewHTTPClient(time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second)

	policy := backoff.New(
		time.Duration(cfg.BackoffBaseSeconds)*time.Second,
		cfg.BackoffMultiplier,
		time.Duration(cfg.BackoffMaxSeconds)*time.Second,
		cfg.BackoffJitter,
		time.Now().UnixNano(),
	)
	fastFail := backoff.NewFastFail(
		cfg.DenialMaxAttempts,
		time.Duration(cfg.DenialDelaySeconds)*time.Second,
		time.Second,
		time.Now().UnixNano(),
	)

	ml := upstream.NewMercadoLibre(cfg.MLBase, cfg.MLSiteID, httpClient, upstream.RetryConfig{
		MaxRetries: cfg.MaxAttempts,
		Policy:     policy,
		FastFail:   fastFail,
	})

	store := queue.NewSQLStore(db)
	b := breaker.New(cfg.BreakerFailureThreshold, time.Duration(cfg.BreakerRecoverySeconds)*time.Second)

	run := runner.New(store, httpClient, b, policy, fastFail, runner.Config{
		WorkerID:     workerID,
		JobType:      cfg.JobType,
		LeaseSeconds: cfg.LockSeconds,
		MaxAttempts:  cfg.MaxAttempts,
		DenialBudget: cfg.DenialMaxAttempts,
	}).WithPublisher(pub)

	run.Register("search", search.NewHandler(ml, search.NewSQLRecorder(db)))
	run.Register("publish", publish.NewHandler(cfg.PublishBase))

	ratesSvc := rates.NewService(
		rates.NewFetcher(cfg.FrankfurterBase, httpClient),
		rates.NewSQLRepo(db),
		cfg.FXBaseCurrency,
		config.CSV(cfg.FXSymbols),
	)

	syncer := listing.NewSyncer(ml, ratesSvc, listing.NewSQLRepo(db), listing.SyncConfig{
		Market:       cfg.MLMarket,
		Keywords:     config.CSV(cfg.MLKeywords),
		Categories:   config.CSV(cfg.MLCategories),
		SellerIDs:    config.CSV(cfg.MLSellerIDs),
		Limit:        cfg.MLLimit,
		MaxPages:     cfg.MLMaxPages,
		FetchDetails: cfg.MLCallItemsDetail,
	})

	return &App{
		Runner:   run,
		Listings: syncer,
		Rates:    ratesSvc,
		cfg:      cfg,
	}, nil
}

// Run drives the worker until ctx is cancelled: the queue poll loop plus
// the rate and listing sync timers. A failed cycle is logged and retried on
// the next tick, never fatal.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if a.cfg.EnableWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.pollQueue(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.syncRatesLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.syncListingsLoop(ctx)
	}()

	<-ctx.Done()
	slog.Info("shutting down worker...")
	wg.Wait()
	return nil
}

func (a *App) pollQueue(ctx context.Context) {
	interval := time.Duration(a.cfg.PollSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("queue poll loop started", "job_type", a.cfg.JobType, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := a.Runner.RunOnce(ctx)
			if err != nil {
				slog.Error("queue cycle failed", "error", err)
				continue
			}
			// Drain the backlog without waiting a tick per job.
			for res.Claimed {
				res, err = a.Runner.RunOnce(ctx)
				if err != nil {
					slog.Error("queue cycle failed", "error", err)
					break
				}
			}
		}
	}
}

func (a *App) syncRatesLoop(ctx context.Context) {
	if err := a.Rates.Sync(ctx); err != nil {
		slog.Error("exchange rate sync failed", "error", err)
	}

	ticker := time.NewTicker(time.Duration(a.cfg.FXSyncHours) * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Rates.Sync(ctx); err != nil {
				slog.Error("exchange rate sync failed", "error", err)
			}
		}
	}
}

func (a *App) syncListingsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.cfg.ListingSyncHours) * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := a.Listings.Sync(ctx)
			if err != nil {
				slog.Error("listing sync failed", "error", err,
					"items_fetched", stats.ItemsFetched, "rows_upserted", stats.RowsUpserted)
			}
		}
	}
}
