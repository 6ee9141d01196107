package commands

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wtask/sharechat/internal/admin"
	"github.com/wtask/sharechat/internal/chat"
	"github.com/wtask/sharechat/internal/chat/catalog"
	"github.com/wtask/sharechat/internal/chat/history"
	"github.com/wtask/sharechat/internal/chat/transfer"
	"github.com/wtask/sharechat/internal/config"
	"github.com/wtask/sharechat/internal/logger"
	"github.com/wtask/sharechat/internal/metrics"
	"github.com/wtask/sharechat/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	Long: `Start the chat server and block until SIGINT or SIGTERM.

Settings come from (highest priority first) flags, SHARECHAT_* environment
variables, the config file and defaults.

Examples:
  # Listen on all interfaces, port 5000
  sharechatd serve

  # Custom address and storage
  sharechatd serve --ip 127.0.0.1 --port 6000 --storage /var/lib/sharechat

  # Debug logging through environment
  SHARECHAT_LOGGING_LEVEL=DEBUG sharechatd serve`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd.Flags())
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.String("ip", "", "listen address (default: all interfaces)")
	flags.Int("port", config.DefaultPort, "listen port")
	flags.String("storage", config.DefaultStorageDir, "directory of shared files")
}

// bindServeFlags - flags override file and environment only when set explicitly.
func bindServeFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"ip":      "server.bind_address",
		"port":    "server.port",
		"storage": "server.storage_dir",
	}
	for name, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, found, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	if err := bindServeFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	version := buildVersion()
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "sharechat",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("sharechat is starting", "version", version)
	if found {
		logger.Info("configuration loaded", "source", v.ConfigFileUsed())
		config.Watch(v, applyLogging, func(err error) {
			logger.Warn("configuration change rejected", logger.KeyError, err)
		})
	} else {
		logger.Info("configuration loaded", "source", "defaults")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	srv, err := newChatServer(cfg, m)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress())
	if err != nil {
		return fmt.Errorf("unable to listen %s: %w", cfg.Server.ListenAddress(), err)
	}

	if cfg.Admin.Enabled {
		adminSrv := admin.NewServer(fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Admin.Port), srv, reg)
		go func() {
			if err := adminSrv.Start(ctx); err != nil {
				logger.Error("admin server error", logger.KeyError, err)
			}
		}()
	}

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(listener)
	}()
	logger.Info("chat server has started, press Ctrl+C to stop")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-served:
		logger.Error("chat server error", logger.KeyError, serveErr)
	}
	stop()

	elapsed, err := srv.Shutdown(cfg.Server.ShutdownTimeout)
	if err != nil {
		logger.Warn("chat server shutdown was not graceful", logger.KeyError, err)
	}
	logger.Info("chat server stopped", logger.KeyDurationMs, elapsed.Milliseconds())
	return serveErr
}

// newChatServer - assembles chat server from configuration.
func newChatServer(cfg *config.Config, m *metrics.Metrics) (*chat.Server, error) {
	files, err := catalog.New(cfg.Server.StorageDir)
	if err != nil {
		return nil, err
	}
	options := []chat.ServerOption{
		chat.WithMetrics(m),
		chat.WithTransferEngine(transfer.NewEngine(cfg.Transfer.ChunkSize.Int(), cfg.Transfer.Timeout)),
		chat.WithMaxUploadSize(cfg.Transfer.MaxUploadSize.Int64()),
		chat.WithMaxLineLength(cfg.Protocol.MaxLineLength.Int()),
		chat.WithIdleTimeout(cfg.Server.IdleTimeout),
		chat.WithWriteTimeout(cfg.Server.WriteTimeout),
		chat.WithOutboxSize(cfg.Server.OutboxSize),
		chat.WithMaxConnections(cfg.Server.MaxConnections),
	}
	if cfg.Server.HistoryGreets > 0 {
		h, err := history.NewStack(cfg.Server.HistoryGreets)
		if err != nil {
			return nil, err
		}
		options = append(options, chat.WithMessageHistory(h, cfg.Server.HistoryGreets))
	}
	return chat.NewServer(chat.DefaultBroker(m), files, options...)
}

// applyLogging - settings safe to change without restart.
func applyLogging(cfg *config.Config) {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	logger.Info("logging reconfigured", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
}
