// Package daemon manages the background mount process's lifecycle: writing
// and reading its PID file, checking liveness, and signaling it to stop.
// This supplements a feature the distilled spec doesn't name but the
// original client does (client/src/commands/start.rs, stop.rs): there it
// polls `pgrep` by process name, which is fragile with multiple users or
// mounts, so here it is reworked as an explicit per-mount PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrNotRunning is returned by Stop and Status when no PID file exists, or
// the process it names is no longer alive.
var ErrNotRunning = errors.New("daemon: not running")

// PIDPath returns the PID file path for a mount at mountPoint, namespaced
// under dir (the per-user directory, e.g. ~/.mistfs).
func PIDPath(dir, mountPoint string) string {
	name := strings.ReplaceAll(strings.Trim(mountPoint, string(filepath.Separator)), string(filepath.Separator), "_")
	if name == "" {
		name = "root"
	}
	return filepath.Join(dir, fmt.Sprintf("%s.pid", name))
}

// WritePID records the current process's PID at path, creating parent
// directories as needed.
func WritePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating pid directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// RemovePID deletes the PID file, ignoring a not-exist error.
func RemovePID(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ReadPID reads and parses the PID recorded at path.
func ReadPID(path string) (int, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", path, err)
	}
	return pid, nil
}

// IsAlive reports whether a process with the given PID currently exists, by
// probing it with signal 0 (sends no signal, only checks existence/
// permission).
func IsAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Stop reads the PID file at path and sends SIGTERM to the process it
// names, then removes the PID file. Returns ErrNotRunning if the file is
// absent or the process is already gone.
func Stop(path string) error {
	pid, err := ReadPID(path)
	if err != nil {
		return err
	}

	if !IsAlive(pid) {
		_ = RemovePID(path)
		return ErrNotRunning
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling pid %d: %w", pid, err)
	}

	return RemovePID(path)
}

// Status reports the PID of the running daemon for path, or ErrNotRunning.
func Status(path string) (int, error) {
	pid, err := ReadPID(path)
	if err != nil {
		return 0, err
	}
	if !IsAlive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}
