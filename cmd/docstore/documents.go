package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/bicesterbug/bbug-planning-reporter/internal/cli"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
)

var (
	docsServerURL string
	docsFormat    string
)

var textCmd = &cobra.Command{
	Use:   "text <document-id>",
	Short: "Print a document's full text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(docsFormat)
		if err != nil {
			return err
		}
		resp := &retrieval.DocumentTextResponse{}
		err = withRetrieval(cmd, func(ret *retrieval.Service) error {
			resp, err = ret.GetDocumentText(cmd.Context(), args[0])
			return err
		}, func() error {
			return callAPI(http.MethodGet, docsServerURL, "/api/v1/documents/"+url.PathEscape(args[0])+"/text", nil, resp)
		})
		if err != nil {
			return err
		}
		return cli.WriteDocumentText(cmd.OutOrStdout(), resp, format)
	},
}

var listCmd = &cobra.Command{
	Use:     "list <case-reference>",
	Short:   "List the documents ingested for a case",
	Example: `  docstore list 25/01178/REM`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(docsFormat)
		if err != nil {
			return err
		}
		resp := &retrieval.ListDocumentsResponse{}
		err = withRetrieval(cmd, func(ret *retrieval.Service) error {
			resp, err = ret.ListDocuments(cmd.Context(), args[0])
			return err
		}, func() error {
			return callAPI(http.MethodGet, docsServerURL, "/api/v1/cases/"+url.PathEscape(args[0])+"/documents", nil, resp)
		})
		if err != nil {
			return err
		}
		return cli.WriteDocuments(cmd.OutOrStdout(), resp, format)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and all of its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp := &retrieval.DeleteResponse{}
		var err error
		err = withRetrieval(cmd, func(ret *retrieval.Service) error {
			resp, err = ret.DeleteDocument(cmd.Context(), args[0])
			return err
		}, func() error {
			return callAPI(http.MethodDelete, docsServerURL, "/api/v1/documents/"+url.PathEscape(args[0]), nil, resp)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%d chunks)\n", resp.DocumentID, resp.ChunksDeleted)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{textCmd, listCmd, deleteCmd} {
		c.Flags().StringVar(&docsServerURL, "server", "", "use a running server at this URL")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{textCmd, listCmd} {
		c.Flags().StringVarP(&docsFormat, "format", "o", "text", "output format: text or json")
	}
}

// withRetrieval runs remote when --server is set, otherwise opens the store
// and runs local against it.
func withRetrieval(cmd *cobra.Command, local func(*retrieval.Service) error, remote func() error) error {
	if docsServerURL != "" {
		return remote()
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
	if err := local(components.Retrieval); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return nil
}
