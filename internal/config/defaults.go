package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wtask/sharechat/internal/bytesize"
)

const (
	DefaultPort            = 5000
	DefaultStorageDir      = "shared_files"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultHistoryGreets   = 10
	DefaultOutboxSize      = 256
	DefaultTransferTimeout = 30 * time.Second
	DefaultChunkSize       = 4 * bytesize.KiB
	DefaultMaxUploadSize   = 1 * bytesize.GiB
	DefaultMaxLineLength   = 64 * bytesize.KiB
	DefaultAdminPort       = 9090
	DefaultOTLPEndpoint    = "localhost:4317"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults, explicit values are preserved.
// Settings where zero is meaningful (max_connections, idle_timeout,
// history_greets) keep their zero.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyTransferDefaults(&cfg.Transfer)
	applyProtocolDefaults(&cfg.Protocol)
	applyLoggingDefaults(&cfg.Logging)
	applyAdminDefaults(&cfg.Admin)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = DefaultStorageDir
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.OutboxSize == 0 {
		cfg.OutboxSize = DefaultOutboxSize
	}
}

func applyTransferDefaults(cfg *TransferConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTransferTimeout
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
}

func applyProtocolDefaults(cfg *ProtocolConfig) {
	if cfg.MaxLineLength == 0 {
		cfg.MaxLineLength = DefaultMaxLineLength
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultAdminPort
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOTLPEndpoint
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// GetDefaultConfig returns a Config with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{HistoryGreets: DefaultHistoryGreets},
		Telemetry: TelemetryConfig{
			Insecure: true,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// setKnownKeys registers every key with its default so that environment
// variables and bound flags resolve even without a config file.
func setKnownKeys(v *viper.Viper) {
	d := GetDefaultConfig()

	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.storage_dir", d.Server.StorageDir)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.history_greets", d.Server.HistoryGreets)
	v.SetDefault("server.outbox_size", d.Server.OutboxSize)

	v.SetDefault("transfer.timeout", d.Transfer.Timeout)
	v.SetDefault("transfer.chunk_size", uint64(d.Transfer.ChunkSize))
	v.SetDefault("transfer.max_upload_size", uint64(d.Transfer.MaxUploadSize))

	v.SetDefault("protocol.max_line_length", uint64(d.Protocol.MaxLineLength))

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("admin.enabled", d.Admin.Enabled)
	v.SetDefault("admin.port", d.Admin.Port)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
}
