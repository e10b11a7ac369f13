// Package server builds the harvester's dependencies and runs passes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/api"
	"github.com/JakeFAU/delta-harvester/internal/clock/system"
	"github.com/JakeFAU/delta-harvester/internal/config"
	"github.com/JakeFAU/delta-harvester/internal/dataset"
	"github.com/JakeFAU/delta-harvester/internal/extract"
	"github.com/JakeFAU/delta-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/delta-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/delta-harvester/internal/harvest"
	"github.com/JakeFAU/delta-harvester/internal/id/uuid"
	"github.com/JakeFAU/delta-harvester/internal/logging"
	"github.com/JakeFAU/delta-harvester/internal/notify"
	"github.com/JakeFAU/delta-harvester/internal/notify/webhook"
	"github.com/JakeFAU/delta-harvester/internal/orchestrator"
	"github.com/JakeFAU/delta-harvester/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/delta-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/delta-harvester/internal/source"
	gcsstorage "github.com/JakeFAU/delta-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/delta-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/delta-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/delta-harvester/internal/storage/postgres"
	"github.com/JakeFAU/delta-harvester/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	fallback        *zap.Logger
	sources         []harvest.Source
	orchestrator    *orchestrator.Orchestrator
	checkpoints     harvest.CheckpointStore
	runs            *memorystorage.RunStore
	dataset         *dataset.Writer
	pgStore         *pgstore.CheckpointStore
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	tracerShutdown  func(context.Context) error
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:     cfg,
		logger:  logger,
		sources: cfg.HarvestSources(),
		runs:    memorystorage.NewRunStore(0),
	}
	logger.Info("building application dependencies",
		zap.Int("sources", len(app.sources)),
		zap.String("checkpoint_backend", cfg.Checkpoint.Backend),
		zap.String("notify_channel", cfg.Notify.Channel),
		zap.String("output_backend", cfg.Output.Backend),
	)

	if err := app.build(ctx); err != nil {
		// Release whatever was opened before the failure.
		_ = app.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	if a.cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
	}

	checkpoints, err := a.setupCheckpoints(ctx)
	if err != nil {
		return err
	}
	a.checkpoints = checkpoints

	notifier, err := a.setupNotifier(ctx)
	if err != nil {
		return err
	}

	if err := a.setupOutput(ctx); err != nil {
		return err
	}

	retrying := a.setupFetcher()
	targets := make([]orchestrator.Target, 0, len(a.sources))
	for _, src := range a.sources {
		adapter, err := source.New(src, retrying, a.logger.Named("source"))
		if err != nil {
			return fmt.Errorf("source %s: %w", src.ID, err)
		}
		targets = append(targets, orchestrator.Target{Source: src, Adapter: adapter})
	}

	a.orchestrator, err = orchestrator.New(targets, orchestrator.Dependencies{
		Checkpoints: a.checkpoints,
		Fetcher:     retrying,
		Extractor:   extract.New(),
		Notifier:    notifier,
		Clock:       system.New(),
		IDs:         uuid.NewUUIDGenerator(),
	}, orchestrator.Config{
		Workers:         a.cfg.Run.Workers,
		Timeout:         a.cfg.Run.Timeout,
		InitialLookback: a.cfg.Run.InitialLookback,
	}, a.logger.Named("orchestrator"))
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	return nil
}

func (a *App) setupCheckpoints(ctx context.Context) (harvest.CheckpointStore, error) {
	switch a.cfg.Checkpoint.Backend {
	case "postgres":
		store, err := pgstore.NewCheckpointStore(ctx, pgstore.CheckpointStoreConfig{
			DSN:   a.cfg.Checkpoint.DSN,
			Table: a.cfg.Checkpoint.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("checkpoint store init failed: %w", err)
		}
		a.pgStore = store
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("checkpoint schema: %w", err)
		}
		a.logger.Info("using postgres checkpoint store", zap.String("table", a.cfg.Checkpoint.Table))
		return store, nil
	default:
		a.logger.Warn("using in-memory checkpoint store; checkpoints are lost on exit")
		return memorystorage.NewCheckpointStore(), nil
	}
}

func (a *App) setupNotifier(ctx context.Context) (*notify.Notifier, error) {
	fallback, err := logging.NewFallback(a.cfg.Notify.FallbackLog)
	if err != nil {
		return nil, fmt.Errorf("fallback log init failed: %w", err)
	}
	a.fallback = fallback

	var channel harvest.Channel
	switch a.cfg.Notify.Channel {
	case "webhook":
		channel, err = webhook.New(a.cfg.Notify.WebhookURL, &http.Client{Timeout: a.cfg.Fetch.Timeout})
		if err != nil {
			return nil, fmt.Errorf("webhook channel init failed: %w", err)
		}
		a.logger.Info("using webhook notification channel")
	case "pubsub":
		a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubPublisher = a.pubsubClient.Publisher(a.cfg.Notify.Topic)
		channel, err = gcppublisher.New(a.pubsubPublisher)
		if err != nil {
			return nil, fmt.Errorf("pubsub channel init failed: %w", err)
		}
		a.logger.Info("using Pub/Sub notification channel",
			zap.String("project", a.cfg.Notify.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
	default:
		a.logger.Info("notifications are logged only")
	}

	return notify.New(channel, notify.Config{
		Title:      a.cfg.Notify.Title,
		MaxRetries: a.cfg.Notify.MaxRetries,
		RetryDelay: a.cfg.Notify.RetryDelay,
	}, fallback, a.logger.Named("notify")), nil
}

func (a *App) setupOutput(ctx context.Context) error {
	var store harvest.BlobStore
	switch a.cfg.Output.Backend {
	case "gcs":
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err = gcsstorage.New(a.storage, gcsstorage.Config{Bucket: a.cfg.Output.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("writing datasets to GCS", zap.String("bucket", a.cfg.Output.Bucket))
	case "local":
		local, err := localstorage.New(localstorage.Config{Dir: a.cfg.Output.Dir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		store = local
		a.logger.Info("writing datasets locally", zap.String("dir", a.cfg.Output.Dir))
	default:
		a.logger.Debug("dataset output disabled")
		return nil
	}
	a.dataset = dataset.NewWriter(store, a.cfg.Output.Prefix, a.logger.Named("dataset"))
	return nil
}

func (a *App) setupFetcher() *fetcher.Retrying {
	transport := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Fetch.Timeout,
	})
	limiter := ratelimit.New(ratelimit.Config{
		RatePerHost: a.cfg.Fetch.RatePerHost,
		Burst:       a.cfg.Fetch.Burst,
	})
	a.logger.Info("fetcher configured",
		zap.String("user_agent", a.cfg.Fetch.UserAgent),
		zap.Int("max_retries", a.cfg.Fetch.MaxRetries),
		zap.Duration("retry_delay", a.cfg.Fetch.RetryDelay),
		zap.Float64("rate_per_host", a.cfg.Fetch.RatePerHost),
	)
	return fetcher.New(
		transport,
		harvest.NewLinearRetryPolicy(a.cfg.Fetch.MaxRetries, a.cfg.Fetch.RetryDelay),
		limiter,
		a.logger.Named("fetcher"),
	)
}

// RunOnce performs one harvesting pass, writes the dataset when output is
// configured and records the report for the ops API.
func (a *App) RunOnce(ctx context.Context) (harvest.RunReport, error) {
	report, err := a.orchestrator.Run(ctx)
	if err != nil {
		return harvest.RunReport{}, fmt.Errorf("run: %w", err)
	}
	if a.dataset != nil {
		uri, err := a.dataset.Write(context.WithoutCancel(ctx), report)
		if err != nil {
			// The checkpoint has already advanced; the run stands.
			a.logger.Error("dataset write failed", zap.String("run_id", report.RunID), zap.Error(err))
		}
		report.DatasetURI = uri
	}
	if err := a.runs.Record(ctx, report); err != nil {
		a.logger.Warn("run report not recorded", zap.Error(err))
	}
	return report, nil
}

// Run satisfies api.Runner.
func (a *App) Run(ctx context.Context) (harvest.RunReport, error) {
	return a.RunOnce(ctx)
}

// Sources returns the configured sources in configuration order.
func (a *App) Sources() []harvest.Source {
	return a.sources
}

// Checkpoints exposes the configured checkpoint store.
func (a *App) Checkpoints() harvest.CheckpointStore {
	return a.checkpoints
}

// Runs exposes recent run reports.
func (a *App) Runs() *memorystorage.RunStore {
	return a.runs
}

// Serve runs the ops HTTP server until ctx is done. When trigger is true,
// POST /v1/runs starts a pass.
func (a *App) Serve(ctx context.Context, trigger bool) error {
	if a.cfg.Server.MetricsAddr == "" {
		return errors.New("server.metrics_addr is not set")
	}
	var runner api.Runner
	if trigger {
		runner = a
	}
	apiServer := api.NewServer(ctx, a.runs, runner, a.cfg.Server.APIKey, a.logger.Named("api"))
	defer apiServer.Close()

	srv := &http.Server{
		Addr:              a.cfg.Server.MetricsAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("ops server started", zap.String("addr", a.cfg.Server.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("ops server shutdown error", zap.Error(err))
	}
	return nil
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.fallback != nil {
		_ = a.fallback.Sync()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
