// Package cmd implements the mistfs CLI surface: config, register, start,
// and stop, mirroring the teacher's cobra-based cmd/root.go and the original
// client's config.rs/register.rs/start.rs/stop.rs commands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mistfs/mistfs/internal/config"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error

	// loadedConfig holds the result of the most recent successful Load,
	// populated by initConfig and consumed by the subcommands.
	loadedConfig config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mistfs",
	Short: "Mount a remote object store as a local FUSE filesystem",
	Long: `mistfs is a FUSE adapter that mounts a remote HTTP object store
(files, directories, symlinks, and hard links) as a local filesystem.`,
}

// Execute runs the root command, printing any error to stderr and exiting 1
// on failure, mirroring the teacher's cmd.Execute.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the config file (default ~/.mistfs/config.toml)")
	bindErr = config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
}

func initConfig() {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			configFileErr = fmt.Errorf("resolving default config path: %w", err)
			return
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			// No config yet; `mistfs config` creates one. Subcommands that need
			// it will surface configFileErr themselves.
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		configFileErr = err
		return
	}
	loadedConfig = cfg
}

func requireConfig() (config.Config, error) {
	if bindErr != nil {
		return config.Config{}, bindErr
	}
	if configFileErr != nil {
		return config.Config{}, configFileErr
	}
	if loadedConfig.Server.URL == "" {
		return config.Config{}, fmt.Errorf("no configuration found; run `mistfs config` first")
	}
	return loadedConfig, nil
}

// credentialsDir returns where Load/Save should look for api_key/secret_key:
// the config's auth.dir override if set, else the default per-user directory.
func credentialsDir(cfg config.Config) (string, error) {
	if cfg.Auth.Dir != "" {
		return cfg.Auth.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, config.DefaultDir), nil
}
