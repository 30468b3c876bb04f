package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/batch-stock/config"
	"github.com/warp/batch-stock/fixtures"
	"github.com/warp/batch-stock/inventory"
	"github.com/warp/batch-stock/inventory/store"
	"github.com/warp/batch-stock/logging"
	"github.com/warp/batch-stock/store/sqlstore"
)

const serviceName = "batch-stock"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBDriver   string
	DBDSN      string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Batch stock consumption service",
		Long:          "FIFO raw-material deduction, rollback and audit for production batches.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DBDriver, "db-driver", "", "database driver (sqlite3|mysql|memory)")
	cmd.PersistentFlags().StringVar(&opts.DBDSN, "db-dsn", "", "database path or DSN")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newRollbackCommand(opts))

	return cmd
}

// loadConfig applies flags on top of config.Load.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("db-driver") {
		cfg.Database.Driver = o.DBDriver
	}
	if flags.Changed("db-dsn") {
		cfg.Database.DSN = o.DBDSN
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, cfg.Validate()
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// backend is what every command needs from a store.
type backend interface {
	inventory.TxStore
	fixtures.Seeder
	fixtures.Resetter
	Close() error
}

type memoryBackend struct {
	*store.Memory
}

func (memoryBackend) Close() error { return nil }

type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  backend
	engine *inventory.Engine
}

func newApp(cfg config.Config) (*app, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg := logging.DefaultConfig(serviceName)
	logCfg.Level = level
	logCfg.Environment = cfg.Environment
	logCfg.Output = os.Stderr
	logger := logging.New(logCfg)
	slog.SetDefault(logger)

	var st backend
	switch cfg.Database.Driver {
	case "memory":
		st = memoryBackend{store.NewMemory()}
	default:
		s, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		st = s
	}
	logger.Info("store ready", "driver", cfg.Database.Driver)

	engine := inventory.NewEngine(st)
	engine.Logger = logger
	engine.MaxRetries = cfg.Engine.MaxRetries

	return &app{cfg: cfg, logger: logger, store: st, engine: engine}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing store", "error", err)
	}
}

func (a *app) seed(ctx context.Context, f *fixtures.Fixture, reset bool) error {
	if reset {
		if err := a.store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
	}
	if err := f.Apply(ctx, a.store); err != nil {
		return fmt.Errorf("failed to seed %s: %w", f.Name, err)
	}
	a.logger.Info("fixture loaded",
		"fixture", f.Name, "materials", len(f.Materials), "lots", len(f.Lots), "recipes", len(f.Recipes))
	return nil
}
