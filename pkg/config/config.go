// Package config loads and validates the blockvault configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority, applied by the commands)
//  2. Environment variables (BLOCKVAULT_*), for keys set in the config file
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Environment variables are not read for keys absent from the configuration
// file, and not at all when no configuration file is found.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/blockvault/internal/bytesize"
)

// Config represents the blockvault configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Backup controls the engine parameters
	Backup BackupConfig `mapstructure:"backup" yaml:"backup"`

	// Metrics controls the Prometheus textfile export
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// BackupConfig controls the backup engine.
type BackupConfig struct {
	// BlockSize is the maximum length of one content-addressed block.
	// Accepts human-readable sizes ("128Mi", "64Mi"). Default: 128Mi.
	// Sets produced with different block sizes still share identical
	// blocks, but unchanged-file detection stays cheapest when the size is
	// left stable across runs.
	BlockSize bytesize.ByteSize `mapstructure:"block_size" yaml:"block_size"`

	// Exclude lists glob-like patterns always excluded, merged with the
	// --exclude flags of the backup command.
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is the path the session metrics are written to in Prometheus
	// text exposition format, for a node_exporter textfile collector.
	// Empty disables the export.
	Textfile string `mapstructure:"textfile" yaml:"textfile,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location; a missing file is not an
// error and yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	if cfg.Backup.BlockSize == 0 {
		return fmt.Errorf("backup.block_size must be greater than zero")
	}
	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the BLOCKVAULT_ prefix:
// BLOCKVAULT_LOGGING_LEVEL=DEBUG overrides logging.level when the config
// file sets that key.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BLOCKVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns whether a
// file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the decode hooks for custom config types,
// notably bytesize.ByteSize.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// getConfigDir returns the directory searched for the default config file:
// $XDG_CONFIG_HOME/blockvault, falling back to ~/.config/blockvault.
func getConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "blockvault")
}

// GetDefaultConfigPath returns the default config file location.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
