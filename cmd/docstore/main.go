// Package main is the docstore CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/config"
	"github.com/bicesterbug/bbug-planning-reporter/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docstore/config.yaml"

var (
	configPath string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "docstore",
	Short: "Document store for planning application case files",
	Long: `docstore ingests planning application documents, splits them into
page-aware chunks, embeds them and answers scoped semantic and keyword
searches over HTTP, MCP or the command line.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When the default file does not exist either, built-in defaults relative to the
// working directory are returned. The second return value is the path that was
// loaded, which is also where inbox changes are saved; it is empty when built-in
// defaults are used, so nothing is persisted.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
			cfg, err = config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds the logger shared by every command.
func setup() (*config.Config, string, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode),
	)
	return cfg, resolved, logger, nil
}
