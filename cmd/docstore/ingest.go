package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bicesterbug/bbug-planning-reporter/internal/classify"
	"github.com/bicesterbug/bbug-planning-reporter/internal/cli"
	"github.com/bicesterbug/bbug-planning-reporter/internal/indexer"
	"github.com/bicesterbug/bbug-planning-reporter/internal/progress"
)

var (
	ingestCase   string
	ingestType   string
	ingestFormat string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path...>",
	Short: "Ingest files or directories into a case",
	Long: `Extracts, chunks, embeds and stores each file under the given case
reference. Directories are walked recursively for supported files. Files
already ingested for the case are reported as unchanged.

Interrupting the command lets documents already in progress finish; the rest
are reported as cancelled.`,
	Example: `  docstore ingest ./downloads/25-01178-REM --case 25/01178/REM
  docstore ingest plans.pdf --case 25/01178/REM --type site_plan`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestCase, "case", "", "case reference the documents belong to (required)")
	f.StringVar(&ingestType, "type", "", "document type; classified automatically when empty")
	f.StringVarP(&ingestFormat, "format", "o", "text", "output format: text or json")
	_ = ingestCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(ingestCmd)
}

// expandPaths replaces each directory in args with the supported files under it.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			// Missing files are reported per item by the indexer.
			abs, absErr := filepath.Abs(arg)
			if absErr != nil {
				abs = arg
			}
			paths = append(paths, abs)
			continue
		}
		files, err := indexer.CollectFiles(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, files...)
	}
	return paths, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(ingestFormat)
	if err != nil {
		return err
	}
	if ingestType != "" {
		if ingestType, err = classify.ParseType(ingestType); err != nil {
			return err
		}
	}
	paths, err := expandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported files found")
	}

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

	observers := append([]progress.Observer{progress.NewLogObserver(logger)}, components.Observers...)
	reporter := progress.NewReporter(
		progress.WithObservers(observers...),
		progress.WithLogger(logger),
	)
	items, batchErr := components.Indexer.IngestBatch(ctx, paths, ingestCase, ingestType, reporter)
	reporter.Wait()

	if err := cli.WriteIngestResults(cmd.OutOrStdout(), items, format); err != nil {
		return err
	}
	if batchErr != nil {
		return fmt.Errorf("ingest interrupted: %w", batchErr)
	}
	return nil
}
