package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vizi2000/maicrosoft/pkg/engine"
	"github.com/vizi2000/maicrosoft/pkg/server"
	"github.com/vizi2000/maicrosoft/pkg/stores"
	"github.com/vizi2000/maicrosoft/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the validation API server",
		Long: `Run the HTTP API that validates and compiles submitted plans.

Endpoints:
  POST /api/v1/validate         validate a plan document
  POST /api/v1/compile          validate and compile a plan
  GET  /api/v1/primitives       list the catalog
  GET  /api/v1/primitives/{id}  one primitive's definition
  GET  /api/v1/search           search the catalog
  GET  /api/v1/history          recent submissions
  GET  /api/v1/status           engine status
  GET  /healthz                 liveness and store health

When the store is enabled every submission is recorded with its
verdict, and compiled artifacts are kept for comparison. Prometheus
metrics are served on their own listener. The server drains in-flight
requests on SIGINT and SIGTERM.`,
		Example: `  # Serve with the defaults (127.0.0.1:8080)
  maicrosoft serve

  # Serve with a config file and submission history
  maicrosoft -c maicrosoft.yaml serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			logger := tel.Logger.Zerolog()

			eng, err := engine.New(ctx, cfg.EngineOptions(), logger)
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())

			for _, name := range cfg.Policies.Disabled {
				if err := eng.Policies().DisablePolicy(name); err != nil {
					return fmt.Errorf("failed to disable policy %s: %w", name, err)
				}
			}

			var store stores.Store
			if cfg.Store.Enabled {
				store, err = openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			if cfg.Registry.Watch {
				if err := eng.WatchPrimitives(ctx); err != nil {
					return err
				}
			}

			srv := server.New(cfg.ServerConfig(), eng, store, tel, logger)
			if err := srv.Start(ctx); err != nil {
				return err
			}

			if err := tel.StartMetricsServer(); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}

			if store != nil && cfg.Retention() > 0 {
				go purgeLoop(ctx, store, cfg.Retention(), logger)
			}

			status := eng.Status()
			logger.Info().
				Str("address", srv.Addr()).
				Int("primitives", status.Primitives).
				Strs("targets", status.Targets).
				Bool("history", store != nil).
				Msg("Serving")

			<-ctx.Done()
			logger.Info().Msg("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Server shutdown failed")
			}
			if err := tel.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Telemetry shutdown failed")
			}
			return nil
		},
	}

	return cmd
}

// purgeLoop prunes submissions older than the retention window, once at
// startup and then hourly.
func purgeLoop(ctx context.Context, store stores.Store, retention time.Duration, logger zerolog.Logger) {
	purge := func() {
		cutoff := time.Now().UTC().Add(-retention)
		n, err := store.PurgeSubmissions(ctx, cutoff)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to purge old submissions")
			return
		}
		if n > 0 {
			logger.Info().
				Int64("purged", n).
				Time("cutoff", cutoff).
				Msg("Purged old submissions")
		}
	}

	purge()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
