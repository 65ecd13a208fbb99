package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bicesterbug/bbug-planning-reporter/internal/extract"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/progress"
)

// BatchItem pairs an input path with its outcome.
type BatchItem struct {
	Path   string              `json:"path"`
	Result models.IngestResult `json:"result"`
}

// IngestBatch ingests paths with bounded concurrency. Results are returned in
// input order. Cancellation is honoured between documents only: a document
// that has started runs to completion, and documents not yet started are
// reported as cancelled. reporter may be nil.
func (idx *Indexer) IngestBatch(ctx context.Context, paths []string, caseReference, documentType string, reporter *progress.Reporter) ([]BatchItem, error) {
	items := make([]BatchItem, len(paths))
	if reporter != nil {
		reporter.Start(len(paths))
		defer reporter.Finish()
	}

	var g errgroup.Group
	g.SetLimit(idx.concurrency)
	for i, path := range paths {
		items[i].Path = path
		name := filepath.Base(path)
		if ctx.Err() != nil {
			items[i].Result = cancelled(reporter, name)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				items[i].Result = cancelled(reporter, name)
				return nil
			}
			if reporter != nil {
				reporter.StartDocument(name)
			}
			res := idx.IngestDocument(ctx, path, caseReference, documentType)
			items[i].Result = res
			if reporter != nil {
				reporter.CompleteDocument(name, res.Status != models.StatusError, res.Message)
			}
			return nil
		})
	}
	_ = g.Wait()

	idx.logger.Info("indexer batch finished",
		zap.Int("files", len(paths)),
		zap.String("case", caseReference))
	return items, ctx.Err()
}

// IngestDirectory walks dir recursively and ingests every regular file with a
// supported extension, in lexical order.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir, caseReference, documentType string, reporter *progress.Reporter) ([]BatchItem, error) {
	paths, err := CollectFiles(dir)
	if err != nil {
		return nil, err
	}
	return idx.IngestBatch(ctx, paths, caseReference, documentType, reporter)
}

// CollectFiles returns the supported regular files under dir.
func CollectFiles(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extract.IsSupported(path) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// cancelled records a document the batch never started. It counts as failed so
// the reporter's totals still add up when the batch finishes.
func cancelled(reporter *progress.Reporter, name string) models.IngestResult {
	res := models.IngestError(models.ErrTypeCancelled, "batch cancelled before this document started")
	if reporter != nil {
		reporter.CompleteDocument(name, false, res.Message)
	}
	return res
}
