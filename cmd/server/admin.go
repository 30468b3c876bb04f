package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/warp/batch-stock/api"
	"github.com/warp/batch-stock/fixtures"
	"github.com/warp/batch-stock/inventory"
	"github.com/warp/batch-stock/store/sqlstore"
)

// =============================================================================
// MIGRATE
// =============================================================================

func newMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			s, ok := a.store.(*sqlstore.Store)
			if !ok {
				return errors.New("migrate needs a sqlite3 or mysql database")
			}
			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("schema up to date", "dialect", string(s.Dialect()))
			return nil
		},
	}
}

// =============================================================================
// SEED
// =============================================================================

type SeedOptions struct {
	*RootOptions
	File  string
	Reset bool
}

func newSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed [fixture]",
		Short: "Load materials, lots and recipes from a YAML fixture",
		Long: fmt.Sprintf(`Load a fixture into the database.

Embedded fixtures: %s

Example:
  server seed school-meals --reset
  server seed --file ./kitchen.yaml`, strings.Join(fixtures.Names(), ", ")),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				f   *fixtures.Fixture
				err error
			)
			switch {
			case opts.File != "" && len(args) > 0:
				return errors.New("give either a fixture name or --file, not both")
			case opts.File != "":
				f, err = fixtures.LoadFile(opts.File)
			case len(args) == 1:
				f, err = fixtures.Builtin(args[0])
			default:
				return errors.New("a fixture name or --file is required")
			}
			if err != nil {
				return err
			}

			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			return a.seed(cmd.Context(), f, opts.Reset)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "path to a fixture YAML file")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "delete all data (including the audit trail) first")

	return cmd
}

// =============================================================================
// ROLLBACK
// =============================================================================

type RollbackOptions struct {
	*RootOptions
	BatchID string
	ActorID string
}

func newRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RollbackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore every lot a batch consumed",
		Long: `Roll back a production batch and print the restored lots as JSON.

Example:
  server rollback --batch 2026-10-17-lunch --actor ops@kitchen`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.engine.Rollback(cmd.Context(),
				inventory.BatchID(opts.BatchID), inventory.ActorID(opts.ActorID))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.NewRollbackResponse(result))
		},
	}

	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "batch id (required)")
	cmd.Flags().StringVar(&opts.ActorID, "actor", "", "who performs the rollback (required)")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}
