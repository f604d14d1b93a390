package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jacobsa/fuse"
	"github.com/spf13/cobra"

	"github.com/mistfs/mistfs/internal/auth"
	"github.com/mistfs/mistfs/internal/config"
	"github.com/mistfs/mistfs/internal/daemon"
	fsadapter "github.com/mistfs/mistfs/internal/fs"
	"github.com/mistfs/mistfs/internal/logger"
	"github.com/mistfs/mistfs/internal/remote"
)

var (
	startDetached      bool
	startEnableAutorun bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Mount the remote filesystem",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startDetached, "detached", false, "Log to the configured log file instead of stdio, as if run by a supervisor")
	startCmd.Flags().BoolVar(&startEnableAutorun, "enable-autorun", false, "Install a systemd user unit that restarts mistfs on failure")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	dir, err := credentialsDir(cfg)
	if err != nil {
		return err
	}

	creds, err := auth.Load(dir)
	if err != nil {
		return fmt.Errorf("%w; run `mistfs register` first", err)
	}

	if startDetached {
		if cfg.Logging.FilePath == "" {
			return fmt.Errorf("--detached requires logging.file_path to be set in the config file")
		}
		if err := logger.InitLogFile(cfg.Logging.Rotate, cfg.Logging); err != nil {
			return fmt.Errorf("init log file: %w", err)
		}
	}

	if startEnableAutorun {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving executable path: %w", err)
		}
		path, err := daemon.EnableAutorun("mistfs", exe)
		if err != nil {
			logger.Warnf("failed to install autorun unit: %v", err)
		} else {
			logger.Infof("installed systemd user unit at %s", path)
		}
	}

	pidPath := daemon.PIDPath(dir, cfg.Mount.Path)
	if err := daemon.WritePID(pidPath); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer daemon.RemovePID(pidPath)

	if err := os.MkdirAll(cfg.Mount.Path, 0o755); err != nil {
		return fmt.Errorf("preparing mount point: %w", err)
	}

	client := remote.New(remote.Config{
		BaseURL: cfg.Server.URL,
		Creds:   creds,
		Timeout: cfg.Server.Timeout,
	})
	defer client.Close()

	fsys := fsadapter.New(client)
	server := fsadapter.Server(fsys)

	mountCfg := &fuse.MountConfig{
		FSName:     "mistfs",
		Subtype:    "mistfs",
		VolumeName: "mistfs",
		Options:    fuseMountOptions(cfg.Mount),
	}

	logger.Infof("mounting %s at %s", cfg.Server.URL, cfg.Mount.Path)

	mfs, err := fuse.Mount(cfg.Mount.Path, server, mountCfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	logger.Infof("mount ready")
	return mfs.Join(context.Background())
}

func fuseMountOptions(mount config.MountConfig) map[string]string {
	opts := make(map[string]string)
	if mount.ReadOnly {
		opts["ro"] = ""
	}
	if mount.AllowOther {
		opts["allow_other"] = ""
	}
	return opts
}
