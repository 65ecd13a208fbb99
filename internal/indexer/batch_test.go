package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/progress"
)

func TestIngestBatch_OrderAndProgress(t *testing.T) {
	f := newFixture(t, nil, WithConcurrency(3))
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeFile(t, f.dir, fmt.Sprintf("doc%d.txt", i), fmt.Sprintf("document number %d about cycle parking", i)))
	}
	paths = append(paths, filepath.Join(f.dir, "missing.txt"))

	reporter := progress.NewReporter()
	items, err := f.idx.IngestBatch(context.Background(), paths, caseRef, "", reporter)
	require.NoError(t, err)
	require.Len(t, items, len(paths))
	for i, it := range items[:5] {
		assert.Equal(t, paths[i], it.Path)
		assert.Equal(t, models.StatusSuccess, it.Result.Status)
	}
	assert.Equal(t, models.ErrTypeFileNotFound, items[5].Result.ErrorType)

	reporter.Wait()
	snap := reporter.Snapshot()
	assert.Equal(t, 6, snap.Total)
	assert.Equal(t, 5, snap.Ingested)
	assert.Equal(t, 1, snap.Failed)
	assert.True(t, snap.Finished)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "missing.txt", snap.Errors[0].Document)

	docs, err := f.store.ListDocuments(context.Background(), caseRef)
	require.NoError(t, err)
	assert.Len(t, docs, 5)
}

func TestIngestBatch_DuplicatesAreIdempotent(t *testing.T) {
	f := newFixture(t, nil, WithConcurrency(2))
	a := writeFile(t, f.dir, "a.txt", "identical content")
	b := writeFile(t, f.dir, "copy/a.txt", "identical content")

	items, err := f.idx.IngestBatch(context.Background(), []string{a, b}, caseRef, "", nil)
	require.NoError(t, err)
	for _, it := range items {
		assert.Contains(t, []string{models.StatusSuccess, models.StatusAlreadyIngested}, it.Result.Status)
	}
	assert.Equal(t, items[0].Result.DocumentID, items[1].Result.DocumentID)
	docs, err := f.store.ListDocuments(context.Background(), caseRef)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngestBatch_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, nil)
	path := writeFile(t, f.dir, "a.txt", "words")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reporter := progress.NewReporter()
	items, err := f.idx.IngestBatch(ctx, []string{path, path}, caseRef, "", reporter)
	assert.ErrorIs(t, err, context.Canceled)
	for _, it := range items {
		assert.Equal(t, models.ErrTypeCancelled, it.Result.ErrorType)
	}
	assert.Equal(t, int64(0), f.backend.Calls())

	reporter.Wait()
	snap := reporter.Snapshot()
	assert.True(t, snap.Finished)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 0, snap.Ingested)
	assert.Equal(t, 2, snap.Failed)
	assert.Equal(t, snap.Total, snap.Done())
	require.Len(t, snap.Errors, 2)
	assert.Equal(t, "a.txt", snap.Errors[0].Document)
}

func TestIngestDirectory(t *testing.T) {
	f := newFixture(t, nil)
	in := filepath.Join(f.dir, "inbox")
	writeFile(t, in, "b.txt", "second file text")
	writeFile(t, in, "a.md", "# first file")
	writeFile(t, in, "nested/c.csv", "a,b\n1,2")
	writeFile(t, in, "drawing.dwg", "binary")

	items, err := f.idx.IngestDirectory(context.Background(), in, caseRef, "", nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a.md", filepath.Base(items[0].Path))
	assert.Equal(t, "b.txt", filepath.Base(items[1].Path))
	assert.Equal(t, "c.csv", filepath.Base(items[2].Path))
	for _, it := range items {
		assert.Equal(t, models.StatusSuccess, it.Result.Status, it.Result.Message)
	}

	_, err = f.idx.IngestDirectory(context.Background(), filepath.Join(f.dir, "nope"), caseRef, "", nil)
	assert.Error(t, err)
}
