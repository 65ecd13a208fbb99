package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bicesterbug/bbug-planning-reporter/internal/cli"
	"github.com/bicesterbug/bbug-planning-reporter/internal/config"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
	"github.com/bicesterbug/bbug-planning-reporter/internal/storage"
)

var (
	statusServerURL string
	statusFormat    string
)

// statusResponse is the part of GET /api/v1/status the CLI prints.
type statusResponse struct {
	retrieval.StatsResponse
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document and chunk counts",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServerURL, "server", "", "query a running server at this URL")
	statusCmd.Flags().StringVarP(&statusFormat, "format", "o", "text", "output format: text or json")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseFormat(statusFormat)
	if err != nil {
		return err
	}
	if statusServerURL != "" {
		var resp statusResponse
		if err := callAPI(http.MethodGet, statusServerURL, "/api/v1/status", nil, &resp); err != nil {
			return err
		}
		if resp.DiskUsageBytes != nil {
			resp.Store.DiskBytes = *resp.DiskUsageBytes
		}
		return cli.WriteStats(cmd.OutOrStdout(), &resp.StatsResponse, format)
	}

	cfg, _, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	components, err := buildComponents(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	stats, err := components.Retrieval.Stats(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.Storage.Backend == config.BackendSQLite {
		if n, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath); err == nil {
			stats.Store.DiskBytes = n
		}
	}
	return cli.WriteStats(cmd.OutOrStdout(), stats, format)
}
