// Command linkaudit records tamper evidence for external links.
//
// Usage:
//
//	linkaudit serve                              # HTTP API on :8000
//	linkaudit serve --mcp stdio                  # MCP over stdin/stdout
//	linkaudit snapshot --url https://example.com --type text --value Download
//	linkaudit get 42
//	linkaudit stats --days 60
//	linkaudit events --month 2026-01
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/linkaudit/clickaudit"
)

var (
	configPath string
	envFile    string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "linkaudit:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "linkaudit",
		Short:         "Click external links in a real browser and keep an append-only audit trail",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newServeCmd(), newSnapshotCmd(), newGetCmd(), newStatsCmd(), newEventsCmd())
	return root
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig reads --config, then overlays .env and the process environment.
func loadConfig() (*clickaudit.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("env file %s: %w", envFile, err)
		}
	}
	cfg := &clickaudit.Config{}
	if configPath != "" {
		var err error
		if cfg, err = clickaudit.LoadConfigFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openService builds the service with logs on stderr so stdout stays
// free for command output and the MCP stdio transport.
func openService() (*clickaudit.Service, *clickaudit.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(os.Stderr, logLevel)
	slog.SetDefault(logger)
	svc, err := clickaudit.New(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return svc, cfg, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
