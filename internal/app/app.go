package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ModelRetrainer/internal/config"
	"ModelRetrainer/internal/dataset"
	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/httpapi"
	"ModelRetrainer/internal/infrastructure/importer"
	"ModelRetrainer/internal/infrastructure/kv"
	"ModelRetrainer/internal/infrastructure/notify"
	"ModelRetrainer/internal/infrastructure/scheduler"
	"ModelRetrainer/internal/infrastructure/telegram"
	"ModelRetrainer/internal/infrastructure/webhook"
	"ModelRetrainer/internal/logging"
	"ModelRetrainer/internal/ports"
	"ModelRetrainer/internal/promotion"
	"ModelRetrainer/internal/registry"
	"ModelRetrainer/internal/trainer"
	"ModelRetrainer/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    kv.Store
	dataset  *dataset.Store
	registry *registry.Registry
	trainer  *trainer.LinearTrainer
	pipeline *usecase.Pipeline
	loader   *importer.Loader
}

// New opens the configured storage backend and builds the pipeline on it.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := openStore(ctx, cfg.Storage, logging.Component(baseLogger, "kv"))
	if err != nil {
		return nil, err
	}
	return newWithStore(cfg, store, baseLogger)
}

func newWithStore(cfg config.Config, store kv.Store, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = slog.New(slog.DiscardHandler)
	}
	ds := dataset.NewStore(store)
	reg := registry.New(store)
	tr := trainer.New(cfg.Pipeline.SplitRatio, cfg.Pipeline.RandomSeed)

	deps := usecase.PipelineDeps{
		Dataset:    ds,
		Trainer:    tr,
		Registry:   reg,
		Policy:     promotion.StrictImprovement{},
		Transactor: kv.NewTransactor(store),
		Notifier:   buildNotifiers(cfg),
		Threshold:  cfg.Pipeline.Threshold,
		Logger:     logging.Component(baseLogger, "pipeline"),
	}
	// Backends shared between processes exclude concurrent runs themselves.
	if locker, ok := store.(ports.RunLocker); ok {
		deps.RunLock = locker
	}

	pipeline, err := usecase.NewPipeline(deps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		dataset:  ds,
		registry: reg,
		trainer:  tr,
		pipeline: pipeline,
		loader:   importer.NewLoader(nil, nil),
	}, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (kv.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return kv.NewMemoryStore(), nil
	case config.DriverBadger:
		bcfg := kv.DefaultBadgerConfig(cfg.Path)
		bcfg.Logger = logger
		return kv.OpenBadger(bcfg)
	case config.DriverPostgres:
		return kv.OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

var _ ports.RunLocker = (*kv.PostgresStore)(nil)

// buildNotifiers exports promoted models first; the channels announcing
// MODEL_FILE only run once that file exists.
func buildNotifiers(cfg config.Config) ports.Notifier {
	channels := notificationChannels(cfg.Notifications)
	if cfg.Models.Dir == "" {
		if len(channels) == 0 {
			return nil
		}
		return channels
	}

	export := notify.Prerequisite{Required: notify.NewArtifactDir(cfg.Models.Dir)}
	if len(channels) > 0 {
		export.Then = channels
	}
	return export
}

func notificationChannels(cfg config.NotificationConfig) notify.Multi {
	var out notify.Multi
	if cfg.EnvFile != "" {
		out = append(out, notify.NewEnvFile(cfg.EnvFile))
	}
	if cfg.Webhook.URL != "" {
		out = append(out, webhook.NewClient(cfg.Webhook.URL, cfg.Webhook.APIKey))
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		out = append(out, telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	return out
}

// RunOnce performs a single pipeline invocation.
func (a *Application) RunOnce(ctx context.Context) (domain.PipelineOutcome, error) {
	return a.pipeline.Run(ctx)
}

// Serve runs the pipeline on the configured interval and exposes the ops
// HTTP surface until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	driver := scheduler.NewIntervalScheduler(a.cfg.Scheduler.Every())
	sched := usecase.NewScheduler(driver, a.pipeline, logging.Component(a.logger, "scheduler"))

	server := httpapi.NewServer(a.cfg.HTTP.Addr, httpapi.Deps{
		Dataset:   a.dataset,
		Registry:  a.registry,
		Threshold: a.pipeline.Threshold(),
		Logger:    logging.Component(a.logger, "http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe()
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(sched.Stop(shutdownCtx), server.Shutdown(shutdownCtx))
	})

	a.logger.Info("serving", "interval", a.cfg.Scheduler.Every(), "addr", a.cfg.HTTP.Addr,
		"threshold", a.pipeline.Threshold())
	return g.Wait()
}

// AddRecord stores a single record.
func (a *Application) AddRecord(ctx context.Context, record domain.Record) (domain.DatasetStatus, error) {
	if err := a.dataset.Add(ctx, record); err != nil {
		return domain.DatasetStatus{}, err
	}
	return a.dataset.Status(ctx)
}

// AddRecords stores a batch in one commit.
func (a *Application) AddRecords(ctx context.Context, records []domain.Record) (domain.DatasetStatus, error) {
	if err := a.dataset.AddBatch(ctx, records); err != nil {
		return domain.DatasetStatus{}, err
	}
	return a.dataset.Status(ctx)
}

// Ingest imports records from a file or URL and stores them in one commit.
func (a *Application) Ingest(ctx context.Context, location, format string, opts importer.Options) (int, domain.DatasetStatus, error) {
	records, err := a.loader.Load(ctx, location, format, opts)
	if err != nil {
		return 0, domain.DatasetStatus{}, err
	}
	status, err := a.AddRecords(ctx, records)
	if err != nil {
		return 0, domain.DatasetStatus{}, err
	}
	a.logger.Info("records ingested", "location", location, "records", len(records), "pending", status.Pending)
	return len(records), status, nil
}

// Seed trains version 1 from an initial dataset. The records become part of
// the stored history without counting as pending.
func (a *Application) Seed(ctx context.Context, location, format string, opts importer.Options) (domain.RegistryEntry, error) {
	records, err := a.loader.Load(ctx, location, format, opts)
	if err != nil {
		return domain.RegistryEntry{}, err
	}

	artifact, result, err := a.trainer.Train(ctx, records)
	if err != nil {
		return domain.RegistryEntry{}, fmt.Errorf("train initial model: %w", err)
	}

	var entry domain.RegistryEntry
	err = kv.Atomically(ctx, a.store, func(ctx context.Context) error {
		if err := a.dataset.AddBatch(ctx, records); err != nil {
			return err
		}
		status, err := a.dataset.Status(ctx)
		if err != nil {
			return err
		}
		if entry, err = a.registry.Seed(ctx, artifact, result); err != nil {
			return err
		}
		return a.dataset.ResetCounter(ctx, status.Total)
	})
	if err != nil {
		return domain.RegistryEntry{}, err
	}

	a.logger.Info("registry seeded", "version", entry.Version, "r2", result.R2, "records", len(records))
	return entry, nil
}

// StatusReport bundles the counter snapshot and the production entry.
type StatusReport struct {
	Dataset    domain.DatasetStatus  `json:"dataset"`
	Threshold  int                   `json:"threshold"`
	Production *domain.RegistryEntry `json:"production"`
}

// Status reads the counter and the production model, if any.
func (a *Application) Status(ctx context.Context) (StatusReport, error) {
	snapshot, err := a.dataset.Status(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{Dataset: snapshot, Threshold: a.pipeline.Threshold()}

	entry, err := a.registry.Current(ctx)
	switch {
	case errors.Is(err, domain.ErrEmptyRegistry):
	case err != nil:
		return StatusReport{}, err
	default:
		report.Production = &entry
	}
	return report, nil
}

// History lists every promoted version, oldest first.
func (a *Application) History(ctx context.Context) ([]domain.RegistryEntry, error) {
	return a.registry.History(ctx)
}

// Close releases the storage backend.
func (a *Application) Close() error {
	return a.store.Close()
}
