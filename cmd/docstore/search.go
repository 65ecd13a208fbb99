package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bicesterbug/bbug-planning-reporter/internal/cli"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
)

var (
	searchCase      string
	searchTypes     []string
	searchLimit     int
	searchFormat    string
	searchKeyword   bool
	searchFuzzy     bool
	searchHybrid    bool
	searchServerURL string
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search ingested documents",
	Long: `Runs a semantic search over ingested chunks. Use --keyword for a full-text
search or --hybrid to blend both. Results can be scoped to one case and to
one or more document types.

With --server the query is sent to a running docstore server instead of
opening the store directly.`,
	Example: `  docstore search "cycle parking provision" --case 25/01178/REM
  docstore search roundabout --keyword --fuzzy --type transport_assessment`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchCase, "case", "", "limit results to this case reference")
	f.StringSliceVar(&searchTypes, "type", nil, "limit results to these document types (repeatable)")
	f.IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default from config)")
	f.StringVarP(&searchFormat, "format", "o", "text", "output format: text or json")
	f.BoolVar(&searchKeyword, "keyword", false, "full-text search instead of semantic")
	f.BoolVar(&searchFuzzy, "fuzzy", false, "tolerate typos in keyword search")
	f.BoolVar(&searchHybrid, "hybrid", false, "blend keyword and semantic relevance")
	f.StringVar(&searchServerURL, "server", "", "query a running server at this URL")
	searchCmd.MarkFlagsMutuallyExclusive("keyword", "hybrid")
	rootCmd.AddCommand(searchCmd)
}

// buildSearchQuery joins positional args into one query string (e.g. search cycle parking → "cycle parking").
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := buildSearchQuery(args)
	if query == "" {
		return errors.New("search query is required")
	}
	format, err := cli.ParseFormat(searchFormat)
	if err != nil {
		return err
	}

	req := retrieval.SearchRequest{
		Query:         query,
		CaseReference: searchCase,
		DocumentTypes: searchTypes,
		Limit:         searchLimit,
	}
	path, body := "/api/v1/search", interface{}(req)
	switch {
	case searchKeyword:
		path, body = "/api/v1/search/keyword", retrieval.KeywordSearchRequest{SearchRequest: req, Fuzzy: searchFuzzy}
	case searchHybrid:
		path, body = "/api/v1/search/hybrid", retrieval.HybridSearchRequest{SearchRequest: req}
	}

	var resp *retrieval.SearchResponse
	if searchServerURL != "" {
		resp = &retrieval.SearchResponse{}
		if err := callAPI(http.MethodPost, searchServerURL, path, body, resp); err != nil {
			return err
		}
		return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
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

	ret := components.Retrieval
	switch b := body.(type) {
	case retrieval.KeywordSearchRequest:
		resp, err = ret.KeywordSearch(cmd.Context(), b)
	case retrieval.HybridSearchRequest:
		resp, err = ret.HybridSearch(cmd.Context(), b)
	default:
		resp, err = ret.Search(cmd.Context(), req)
	}
	if err != nil {
		return err
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
}
