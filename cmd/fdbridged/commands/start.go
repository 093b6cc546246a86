package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/server"
	"github.com/catabozan/fdbridge/pkg/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bridge server",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, v, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// Re-apply logging settings when the config file changes on disk.
	config.Watch(v, func(fresh *config.Config) {
		logger.SetLevel(fresh.Logging.Level)
		logger.SetFormat(fresh.Logging.Format)
		logger.Info("Logging settings reloaded",
			"level", fresh.Logging.Level,
			"format", fresh.Logging.Format)
	})

	srv := server.New(server.Config{
		Transport:       cfg.Transport.Mode,
		SocketPath:      cfg.Transport.SocketPath,
		Host:            cfg.Transport.Host,
		Port:            cfg.Transport.Port,
		MaxHandles:      cfg.Server.MaxHandles,
		RegisterPortmap: cfg.Transport.RegisterPortmap,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPort:     cfg.Metrics.Port,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on SIGINT/SIGTERM, hard exit if the drain hangs.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Shutting down", "signal", sig.String())
		cancel()

		time.Sleep(cfg.Server.ShutdownTimeout)
		logger.Error("Shutdown drain timed out, exiting")
		os.Exit(1)
	}()

	return srv.Serve(ctx)
}
