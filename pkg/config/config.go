// Package config loads and validates the bridge server configuration.
//
// Sources in order of precedence:
//
//  1. Environment variables (FDBRIDGE_*, plus the bare RPC_TRANSPORT)
//  2. Configuration file (YAML)
//  3. Default values
//
// RPC_TRANSPORT is bound explicitly and case-insensitively because the
// client shim reads the identical variable: both sides of a deployment
// select the transport with one setting.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// Config is the bridge server configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Transport selects and parameterizes the stream transport.
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`

	// Server holds service-loop settings.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TransportConfig selects the stream transport.
type TransportConfig struct {
	// Mode is "unix" (default) or "tcp", case-insensitive. Overridden by
	// the RPC_TRANSPORT environment variable.
	Mode string `mapstructure:"mode" validate:"required,oneof=unix tcp" yaml:"mode"`

	// SocketPath is the unix socket path.
	SocketPath string `mapstructure:"socket_path" validate:"required" yaml:"socket_path"`

	// Host and Port are the TCP listening address. Port 0 lets the kernel
	// choose; the portmapper registration then carries the real port.
	Host string `mapstructure:"host" validate:"required" yaml:"host"`
	Port int    `mapstructure:"port" validate:"gte=0,lte=65535" yaml:"port"`

	// RegisterPortmap registers the program with the local portmapper
	// when serving over TCP.
	RegisterPortmap bool `mapstructure:"register_portmap" yaml:"register_portmap"`
}

// ServerConfig holds service-loop settings.
type ServerConfig struct {
	// MaxHandles is the per-connection translation table capacity.
	MaxHandles int `mapstructure:"max_handles" validate:"gt=3" yaml:"max_handles"`

	// ShutdownTimeout bounds the graceful-shutdown drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	// Enabled turns the endpoint on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port serving /metrics.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535" yaml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Transport: TransportConfig{
			Mode:            "unix",
			SocketPath:      "/tmp/p3_tb",
			Host:            "127.0.0.1",
			Port:            20049,
			RegisterPortmap: true,
		},
		Server: ServerConfig{
			MaxHandles:      types.DefaultMaxHandles,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9357,
		},
	}
}

// Load reads the configuration from the given file path (optional) and the
// environment, returning the validated config plus the viper instance so
// the caller can watch the file for changes.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FDBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The transport selector is shared with the client shim, which reads
	// the bare RPC_TRANSPORT; bind it alongside the prefixed form.
	if err := v.BindEnv("transport.mode", "RPC_TRANSPORT", "FDBRIDGE_TRANSPORT_MODE"); err != nil {
		return nil, nil, fmt.Errorf("bind transport env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// unmarshal decodes the viper state into a Config, normalizing the
// case-insensitive fields first.
func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Transport.Mode = strings.ToLower(cfg.Transport.Mode)
	return cfg, nil
}

// setDefaults seeds viper with the built-in configuration.
func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output", def.Logging.Output)
	v.SetDefault("transport.mode", def.Transport.Mode)
	v.SetDefault("transport.socket_path", def.Transport.SocketPath)
	v.SetDefault("transport.host", def.Transport.Host)
	v.SetDefault("transport.port", def.Transport.Port)
	v.SetDefault("transport.register_portmap", def.Transport.RegisterPortmap)
	v.SetDefault("server.max_handles", def.Server.MaxHandles)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.port", def.Metrics.Port)
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config: field %q fails %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// asValidationErrors unwraps validator's typed error list.
func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// LoggerConfig converts the logging section to the logger package's form.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}
