package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bicesterbug/bbug-planning-reporter/internal/mcp"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the document store over the Model Context Protocol",
	Long: `Starts an MCP server exposing ingest_document, search, keyword_search,
get_document_text and list_documents, plus document and case resources.

Without --port the server speaks MCP over stdio, for clients that launch it
as a subprocess. With --port it serves streamable HTTP on that port.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().IntVar(&mcpPort, "port", 0, "serve streamable HTTP on this port instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, _, logger, err := setup()
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

	srv, err := mcp.NewServer(&mcp.Ports{
		Retrieval:      components.Retrieval,
		Ingest:         components.Indexer,
		KeywordEnabled: true,
	}, logger)
	if err != nil {
		return err
	}
	if mcpPort > 0 {
		return srv.RunHTTP(ctx, fmt.Sprintf("%s:%d", cfg.Server.Host, mcpPort))
	}
	return srv.Run(ctx)
}
