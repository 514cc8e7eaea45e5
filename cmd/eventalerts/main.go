package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/eventalerts/pkg/config"
)

var (
	configFile  string
	listenAddr  string
	verbose     bool
	versionJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "eventalerts",
	Short: "eventalerts - monitor event polling and notifications",
	Long: `eventalerts polls the monitoring events API for the configured monitors,
keeps a bounded history of classified events and notifies about new ones
through native notifications and in-page overlays.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the alerting engine and HTTP API",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if versionJSON {
			data, _ := json.MarshalIndent(config.GetBuildInfo(), "", "  ")
			fmt.Println(string(data))
			return
		}
		fmt.Println(config.VersionString())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&listenAddr, "address", "a", "", "HTTP API listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print build info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testConnectionCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when given and applies CLI overrides.
func loadConfig() (*Config, error) {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if listenAddr != "" {
		cfg.Server.Address = listenAddr
	}
	cfg.Verbose = verbose
	if verbose && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
