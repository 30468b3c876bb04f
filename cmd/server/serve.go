package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/batch-stock/api"
	"github.com/warp/batch-stock/fixtures"
	"github.com/warp/batch-stock/metrics"
)

type ServeOptions struct {
	*RootOptions
	Port     int
	Scenario string
}

func newServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API on the configured port.

Example:
  server serve --db-dsn ./stock.db --port 8080
  server serve --db-driver memory --scenario school-meals`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "HTTP server port (overrides config)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "load an embedded fixture before serving")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = opts.Port
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.Scenario != "" {
		f, err := fixtures.Builtin(opts.Scenario)
		if err != nil {
			return err
		}
		if err := a.seed(cmd.Context(), f, true); err != nil {
			return err
		}
	}

	m := metrics.New(metrics.DefaultConfig())
	a.engine.Recorder = m

	handler := api.NewHandler(a.engine, a.logger)
	if cfg.Environment != "production" {
		handler.Scenarios = a.store
	}
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		a.logger.Info("shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}
