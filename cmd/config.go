package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/mistfs/mistfs/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Interactively create the mistfs config file",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	path, err := config.DefaultPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "\nConfiguration file already exists at %q\n", path)
		fmt.Fprintln(os.Stderr, "Delete or rename it before creating a new one.")
		return nil
	}

	fmt.Println("\nmistfs configuration setup:")
	fmt.Println("Press ENTER to use the default value (shown in brackets)")

	home, _ := os.UserHomeDir()
	defaultMount := filepath.Join(home, "mistfsFS")

	in := bufio.NewReader(os.Stdin)
	serverURL := prompt(in, "Server URL", "https://localhost")
	port := promptUint16(in, "Port", 8080)
	mountPoint := prompt(in, "Mount point", defaultMount)
	timeoutSecs := promptUint16(in, "Timeout in seconds", 60)

	cfg := config.Config{
		Server: config.ServerConfig{
			URL:     serverURL,
			Port:    port,
			Timeout: time.Duration(timeoutSecs) * time.Second,
		},
		Mount: config.MountConfig{Path: mountPoint},
	}

	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfiguration file created at %q\n", path)
	return nil
}

func prompt(in *bufio.Reader, field, def string) string {
	fmt.Printf("%s [%s]: ", field, def)
	line, _ := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptUint16(in *bufio.Reader, field string, def uint16) uint16 {
	for {
		fmt.Printf("%s [%d]: ", field, def)
		line, _ := in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			return def
		}
		v, err := strconv.ParseUint(line, 10, 16)
		if err == nil {
			return uint16(v)
		}
		fmt.Println("Invalid input, please try again.")
	}
}
