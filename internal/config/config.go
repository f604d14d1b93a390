// Package config loads the mount daemon's settings: server connection
// details, the local mount point, and credential overrides. It follows the
// teacher's viper-backed cfg package, adapted from YAML to TOML per
// spec.md §6.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultDir is the per-user directory holding the config file and
// credentials, mirroring the original client's "~/.bifrost" convention.
const DefaultDir = ".mistfs"

// DefaultConfigFile is the config file name within DefaultDir.
const DefaultConfigFile = "config.toml"

// DefaultPath returns the default config file path (~/.mistfs/config.toml),
// creating the containing directory if it doesn't exist.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	dir := filepath.Join(home, DefaultDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	return filepath.Join(dir, DefaultConfigFile), nil
}

// Config is the full set of settings read from the TOML config file, the
// environment, and flags (in that order of increasing precedence).
type Config struct {
	Server  ServerConfig  `mapstructure:"server" toml:"server"`
	Mount   MountConfig   `mapstructure:"mount" toml:"mount"`
	Auth    AuthConfig    `mapstructure:"auth" toml:"auth"`
	Logging LoggingConfig `mapstructure:"logging" toml:"logging"`
}

// ServerConfig describes the remote object store to talk to.
type ServerConfig struct {
	URL     string        `mapstructure:"url" toml:"url"`
	Port    uint16        `mapstructure:"port" toml:"port"`
	Timeout time.Duration `mapstructure:"timeout" toml:"timeout"`
}

// MountConfig describes the local mount point.
type MountConfig struct {
	Path       string `mapstructure:"path" toml:"path"`
	ReadOnly   bool   `mapstructure:"read_only" toml:"read_only"`
	AllowOther bool   `mapstructure:"allow_other" toml:"allow_other"`
}

// AuthConfig optionally overrides where credentials are loaded from.
type AuthConfig struct {
	Dir    string `mapstructure:"dir" toml:"dir"`
	APIKey string `mapstructure:"api_key" toml:"api_key"`
}

// LoggingConfig controls the daemon's log output.
type LoggingConfig struct {
	Severity string          `mapstructure:"severity" toml:"severity"`
	Format   string          `mapstructure:"format" toml:"format"`
	FilePath string          `mapstructure:"file_path" toml:"file_path"`
	Rotate   LogRotateConfig `mapstructure:"rotate" toml:"rotate"`
}

// LogRotateConfig controls on-disk log rotation via lumberjack.
type LogRotateConfig struct {
	MaxFileSizeMB   int  `mapstructure:"max_file_size_mb" toml:"max_file_size_mb"`
	BackupFileCount int  `mapstructure:"backup_file_count" toml:"backup_file_count"`
	Compress        bool `mapstructure:"compress" toml:"compress"`
}

// DefaultLogRotateConfig returns the rotation policy used when none is
// configured.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

// Severity levels accepted in LoggingConfig.Severity, ordered from most to
// least verbose.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// BindFlags registers the persistent flags that can override config-file
// values, mirroring the teacher's cfg.BindFlags.
func BindFlags(flags *pflag.FlagSet) error {
	flags.String("server-url", "", "Base URL of the remote store")
	flags.Uint16("server-port", 8080, "Port of the remote store")
	flags.Duration("server-timeout", 60*time.Second, "Per-request timeout")
	flags.String("mount-path", "", "Local mount point")
	flags.Bool("read-only", false, "Mount the filesystem read-only")
	flags.Bool("allow-other", false, "Allow other users to access the mount")

	for _, binding := range []struct {
		key  string
		flag string
	}{
		{"server.url", "server-url"},
		{"server.port", "server-port"},
		{"server.timeout", "server-timeout"},
		{"mount.path", "mount-path"},
		{"mount.read_only", "read-only"},
		{"mount.allow_other", "allow-other"},
	} {
		if err := viper.BindPFlag(binding.key, flags.Lookup(binding.flag)); err != nil {
			return fmt.Errorf("bind %s: %w", binding.key, err)
		}
	}

	return nil
}

// Load reads the TOML config at path (if non-empty) and unmarshals it,
// flags, and environment overrides into a Config.
func Load(path string) (Config, error) {
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("MISTFS")
	viper.AutomaticEnv()

	setDefaults()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeout", 60*time.Second)
	viper.SetDefault("mount.path", "/mnt/mistfs")
	viper.SetDefault("mount.read_only", false)
	viper.SetDefault("mount.allow_other", false)
	viper.SetDefault("logging.severity", INFO)
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.rotate.max_file_size_mb", DefaultLogRotateConfig().MaxFileSizeMB)
	viper.SetDefault("logging.rotate.backup_file_count", DefaultLogRotateConfig().BackupFileCount)
	viper.SetDefault("logging.rotate.compress", DefaultLogRotateConfig().Compress)
}

// validate collects every violation instead of failing on the first, so a
// user fixing a config file sees all of its problems in one pass.
func validate(cfg Config) error {
	var errs []error

	if cfg.Server.URL == "" {
		errs = append(errs, fmt.Errorf("server.url is required"))
	}
	if cfg.Mount.Path == "" {
		errs = append(errs, fmt.Errorf("mount.path is required"))
	} else if !filepath.IsAbs(cfg.Mount.Path) {
		errs = append(errs, fmt.Errorf("mount.path must be an absolute path, got %q", cfg.Mount.Path))
	}
	if cfg.Server.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("server.timeout must be positive"))
	}

	return errors.Join(errs...)
}
