package application

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emr-backup-sync/internal/backup"
	"emr-backup-sync/internal/logging"
)

// shutdownTimeout bounds the final backup and loop joins during Shutdown
const shutdownTimeout = 2 * time.Minute

// Application wires the backup system together. Every dependency is
// constructed here and passed down explicitly; nothing reaches for globals.
type Application struct {
	config  *backup.BackupSystemConfig
	logger  *logging.Logger
	crypto  *backup.CryptoEngine
	metrics *backup.MetricsCollector

	archiver  *backup.Archiver
	scheduler *backup.Scheduler

	// Cloud side, nil when sync is disabled
	backend      backup.StorageBackend
	orchestrator *backup.Orchestrator
	coordinator  *backup.Coordinator
}

// Options carries the host application's collaborators into the wiring.
// Config takes precedence over ConfigPath when both are set.
type Options struct {
	ConfigPath string
	Config     *backup.BackupSystemConfig
	AppVersion string
	Dataset    backup.DatasetProvider
	Oracle     backup.ChangeOracle
	LogOutput  io.Writer
}

// NewApplication builds the full dependency graph from configuration
func NewApplication(ctx context.Context, opts Options) (*Application, error) {
	if opts.Dataset == nil {
		return nil, backup.NewConfigurationError("dataset provider is required", nil)
	}

	config := opts.Config
	if config == nil {
		loaded, err := backup.NewConfigLoader(opts.ConfigPath).LoadConfig()
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  logging.LogLevel(config.Logging.Level),
		Format: config.Logging.Format,
		Output: opts.LogOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	scheme, err := config.Encryption.SchemeByte()
	if err != nil {
		return nil, err
	}
	crypto, err := backup.NewCryptoEngine(scheme)
	if err != nil {
		return nil, err
	}

	metrics := backup.NewMetricsCollector(logger, config.ReportPath)

	archiver, err := backup.NewArchiver(opts.Dataset, crypto, logger, config.BackupDir, opts.AppVersion)
	if err != nil {
		return nil, err
	}

	scheduler, err := backup.NewScheduler(archiver, opts.Oracle, logger, metrics, config.Scheduler)
	if err != nil {
		return nil, err
	}

	app := &Application{
		config:    config,
		logger:    logger,
		crypto:    crypto,
		metrics:   metrics,
		archiver:  archiver,
		scheduler: scheduler,
	}

	if config.Sync.Enabled {
		if err := app.wireCloud(ctx); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// wireCloud builds the storage backend, orchestrator and coordinator
func (app *Application) wireCloud(ctx context.Context) error {
	backend, err := backup.NewStorageBackend(ctx, app.config.Storage)
	if err != nil {
		return err
	}

	notifier := backup.NewNotifier(app.logger, app.config.Notifications)

	orchestrator, err := backup.NewOrchestrator(
		backend, app.config.Storage.Provider, app.crypto, app.logger, notifier, app.config.BackupDir)
	if err != nil {
		return err
	}

	coordinator, err := backup.NewCoordinator(
		orchestrator, app.archiver, app.logger, app.metrics, app.config.Sync)
	if err != nil {
		return err
	}

	app.backend = backend
	app.orchestrator = orchestrator
	app.coordinator = coordinator
	return nil
}

// Start launches the scheduler and, when enabled, the background sync loop
func (app *Application) Start(intervalHours int) error {
	app.logger.Info("Backup system starting")

	if app.config.Scheduler.Enabled {
		app.scheduler.Start()
	}
	if app.coordinator != nil {
		if err := app.coordinator.StartBackgroundSync(intervalHours); err != nil {
			return err
		}
	}
	return nil
}

// RunUntilSignal blocks until SIGINT or SIGTERM, then shuts down
func (app *Application) RunUntilSignal() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	app.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	return app.Shutdown()
}

// Shutdown stops the loops in a fixed order: background sync first, then
// the scheduler, then the final on-close backup, then the backend. Each
// step completes or times out before the next begins.
func (app *Application) Shutdown() error {
	app.logger.Info("Shutting down backup system")

	if app.coordinator != nil {
		app.coordinator.StopBackgroundSync()
	}
	app.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.scheduler.BackupOnClose(ctx); err != nil {
		app.logger.Errorf("final backup on close failed: %v", err)
	}

	if closer, ok := app.backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			app.logger.Warnf("storage backend close failed: %v", err)
		}
	}

	app.logger.Info("Backup system shutdown complete")
	return nil
}

// Config returns the loaded configuration
func (app *Application) Config() *backup.BackupSystemConfig {
	return app.config
}

// Logger returns the application logger
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Archiver returns the local archive manager
func (app *Application) Archiver() *backup.Archiver {
	return app.archiver
}

// Scheduler returns the local backup scheduler
func (app *Application) Scheduler() *backup.Scheduler {
	return app.scheduler
}

// Coordinator returns the sync coordinator, or nil when sync is disabled
func (app *Application) Coordinator() *backup.Coordinator {
	return app.coordinator
}

// Orchestrator returns the transfer orchestrator, or nil when sync is
// disabled
func (app *Application) Orchestrator() *backup.Orchestrator {
	return app.orchestrator
}

// Metrics returns the metrics collector
func (app *Application) Metrics() *backup.MetricsCollector {
	return app.metrics
}
