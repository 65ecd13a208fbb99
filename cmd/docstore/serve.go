package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/mcp"
	"github.com/bicesterbug/bbug-planning-reporter/internal/progress"
	"github.com/bicesterbug/bbug-planning-reporter/internal/server"
	"github.com/bicesterbug/bbug-planning-reporter/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, progress stream and inbox watcher",
	Long: `Starts the HTTP API. Batch progress is streamed to websocket clients
and to Redis or Kafka when configured. Inboxes listed in the config are
watched and new files are ingested under the inbox's case reference.
When server.mcp_path is set, the MCP endpoint is mounted on the same port.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, resolvedConfigPath, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	idx := components.Indexer
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Inboxes,
		cfg.Watch.RecursiveOrDefault(),
		func(path string, inbox watcher.Inbox) {
			res := idx.IngestDocument(ctx, path, inbox.CaseReference, inbox.DocumentType)
			logger.Info("inbox file ingested",
				zap.String("path", path),
				zap.String("case_reference", inbox.CaseReference),
				zap.String("status", res.Status),
				zap.String("document_id", res.DocumentID),
				zap.String("error_type", res.ErrorType),
			)
		},
		watcher.WithLogger(logger),
		watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond),
	)
	if err := watchSvc.Start(ctx); err != nil {
		return err
	}
	defer watchSvc.Stop()
	watchSvc.SyncExistingFiles()

	opts := []server.Option{
		server.WithHub(progress.NewHub(logger)),
		server.WithObservers(components.Observers...),
		server.WithWatch(watchSvc, resolvedConfigPath),
	}
	if cfg.Server.MCPPath != "" {
		mcpSrv, err := mcp.NewServer(&mcp.Ports{
			Retrieval:      components.Retrieval,
			Ingest:         idx,
			KeywordEnabled: true,
		}, logger)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithMCPHandler(mcpSrv.Handler()))
	}
	srv := server.NewServer(components.Retrieval, idx, cfg, logger, opts...)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return err
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
