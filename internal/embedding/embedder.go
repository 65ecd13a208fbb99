// Package embedding turns text into fixed-length vectors. A Service wraps a model
// Backend that is loaded lazily on first use.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Backend is a loaded embedding model.
type Backend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Loader constructs a Backend. It is called at most once per successful load.
type Loader func(ctx context.Context) (Backend, error)

var (
	// ErrEmptyInput is returned for empty or whitespace-only input text.
	ErrEmptyInput = errors.New("empty input text")
	// ErrModelLoad wraps any failure to load the embedding model.
	ErrModelLoad = errors.New("failed to load embedding model")
)

// EmptyInputError reports which entry of a batch was empty.
type EmptyInputError struct {
	Index int
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("empty input text at index %d", e.Index)
}

// Is lets errors.Is(err, ErrEmptyInput) match.
func (e *EmptyInputError) Is(target error) bool {
	return target == ErrEmptyInput
}
