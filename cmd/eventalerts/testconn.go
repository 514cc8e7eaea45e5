package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/good-yellow-bee/eventalerts/internal/alerting"
	"github.com/good-yellow-bee/eventalerts/internal/fetcher"
	"github.com/good-yellow-bee/eventalerts/internal/logging"
	"github.com/good-yellow-bee/eventalerts/internal/models"
	"github.com/good-yellow-bee/eventalerts/internal/storage"
)

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Fetch the last hour of events once and report the count",
	Long: `Fetch the last hour of events for the configured monitors without
storing or notifying. API keys are read from EVENTALERTS_API_KEY and
EVENTALERTS_APP_KEY and prompted for when missing.`,
	RunE: runTestConnection,
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Alerts.HasMonitors() {
		return fmt.Errorf("alerts.monitor_ids is required")
	}

	creds := cfg.Credentials()
	if creds.APIKey == "" {
		if creds.APIKey, err = promptSecret("API key: "); err != nil {
			return fmt.Errorf("read API key: %w", err)
		}
	}
	if creds.AppKey == "" {
		if creds.AppKey, err = promptSecret("Application key: "); err != nil {
			return fmt.Errorf("read application key: %w", err)
		}
	}

	n, err := testConnection(cmd.Context(), cfg, creds)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "connection ok: %d events in the last hour\n", n)
	return nil
}

// testConnection runs a single fetch through an engine backed by memory storage.
func testConnection(ctx context.Context, cfg *Config, creds models.Credentials) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	engine := alerting.New(alerting.Options{
		Fetcher: fetcher.NewClient(fetcher.Config{
			Timeout:   duration(cfg.API.Timeout),
			UserAgent: cfg.API.UserAgent,
		}),
		Store:  storage.NewEventStore(storage.NewMemoryStorage()),
		Logger: logging.Nop(),
	})
	if err := engine.Configure(cfg.Alerts.Settings, creds); err != nil {
		return 0, err
	}
	return engine.TestConnection(ctx)
}

func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	// Piped input
	reader := bufio.NewReader(os.Stdin)
	secret, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(secret), nil
}
