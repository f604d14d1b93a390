package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mistfs/mistfs/internal/auth"
	"github.com/mistfs/mistfs/internal/remote"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this machine's user with the remote store",
	RunE:  runRegister,
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	dir, err := credentialsDir(cfg)
	if err != nil {
		return err
	}

	if credentialsExist(dir) {
		if !askConfirmation("\nKeys already exist. Overwrite them?") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\nBegin registration:")

	username := currentUsername()

	client := remote.New(remote.Config{BaseURL: cfg.Server.URL})
	creds, err := client.UserRegistration(context.Background(), username)
	if err != nil {
		return fmt.Errorf("user registration failed: %w", err)
	}

	fmt.Printf("  User %q successfully registered\n", username)

	if err := auth.Save(dir, creds.APIKey, creds.SecretKey); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Printf("  Keys saved in %q\n", dir)
	fmt.Println("Registration complete!")
	return nil
}

func credentialsExist(dir string) bool {
	_, err := auth.Load(dir)
	return err == nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

func askConfirmation(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	in := bufio.NewReader(os.Stdin)
	line, _ := in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
