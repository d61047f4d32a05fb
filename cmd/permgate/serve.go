// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/permgate/permgate/internal/config"
	"github.com/permgate/permgate/internal/logging"
	"github.com/permgate/permgate/internal/observability"
)

const defaultPurgeInterval = time.Minute

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var purgeInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the permission daemon",
		Long: `Run the permission daemon: keeps groups and tracks resident,
serves metrics and health endpoints, and sweeps expired temporary
permissions on an interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, purgeInterval)
		},
	}

	cmd.Flags().DurationVar(&purgeInterval, "purge-interval", defaultPurgeInterval, "how often expired temporary nodes are swept")
	addConfigFlags(cmd)

	return cmd
}

// addConfigFlags registers the dotted config-override flags shared by the
// long-running and one-shot commands.
func addConfigFlags(cmd *cobra.Command) {
	def := config.Default()
	cmd.Flags().String("storage.backend", def.Storage.Backend, "storage backend (postgres or yaml)")
	cmd.Flags().String("storage.database_url", "", "PostgreSQL connection URL")
	cmd.Flags().String("storage.directory", "", "yaml backend directory (default: XDG data dir)")
	cmd.Flags().String("log.format", def.Log.Format, "log format (json or text)")
	cmd.Flags().String("metrics_addr", def.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
}

// loadConfig layers the --config file and the command's flags over defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

func runServe(cmd *cobra.Command, purgeInterval time.Duration) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.SetDefault(version, cfg.Log.Format)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	slog.Info("starting permission daemon",
		"backend", cfg.Storage.Backend,
		"metrics_addr", cfg.MetricsAddr,
	)

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	slog.Info("engine ready",
		"groups", len(eng.reg.LoadedGroups()),
		"tracks", len(eng.reg.LoadedTracks()),
	)

	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool { return true })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	// Sweep expired temporary nodes so long-lived daemons do not carry them
	// until the next mutation touches the holder.
	go func() {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := eng.reg.PurgeExpired(ctx, now); n > 0 {
					slog.Info("purged expired nodes", "count", n)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Permission daemon started")

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors watches a server's error channel and cancels the
// context on error so a failed listener takes the daemon down cleanly.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
