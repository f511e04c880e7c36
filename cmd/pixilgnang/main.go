package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/T1murKa41/pixilgnang/internal/config"
	"github.com/T1murKa41/pixilgnang/internal/state"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "pixilgnang",
	Short:        "Telegram bot that collects submissions and publishes approved ones to channels",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".pixilgnang", "config.json"), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config file or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func dbPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "pixilgnang.db")
}

// openDB opens the bot database for the operator commands.
func openDB(ctx context.Context, cfg *config.Config) (*state.DB, error) {
	db, err := state.Open(ctx, dbPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
