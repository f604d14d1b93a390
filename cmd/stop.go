package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mistfs/mistfs/internal/daemon"
)

var stopDisableAutorun bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Unmount and stop the running mistfs daemon",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopDisableAutorun, "disable-autorun", false, "Remove the systemd user unit installed by `start --enable-autorun`")
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	dir, err := credentialsDir(cfg)
	if err != nil {
		return err
	}

	if stopDisableAutorun {
		if err := daemon.DisableAutorun("mistfs"); err != nil {
			fmt.Printf("failed to remove autorun unit: %v\n", err)
		} else {
			fmt.Println("systemd user unit removed")
		}
	}

	pidPath := daemon.PIDPath(dir, cfg.Mount.Path)
	if err := daemon.Stop(pidPath); err != nil {
		if errors.Is(err, daemon.ErrNotRunning) {
			fmt.Println("mistfs is not running")
			return nil
		}
		return fmt.Errorf("stopping mistfs: %w", err)
	}

	fmt.Println("mistfs stopped")
	return nil
}
