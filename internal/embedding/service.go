package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxChars is the input length, in characters, beyond which text is truncated.
const DefaultMaxChars = 8000

// Service validates and truncates input, consults the cache and forwards the rest to
// the backend. The backend is loaded on the first call; concurrent first calls share
// a single load and a failed load is retried on the next call.
type Service struct {
	load     Loader
	maxChars int
	cache    *EmbeddingCache
	logger   *zap.Logger

	group   singleflight.Group
	mu      sync.Mutex
	backend Backend
}

// Option configures a Service.
type Option func(*Service)

// WithMaxChars sets the truncation length. Values <= 0 keep the default.
func WithMaxChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// WithCache enables an LRU cache of the given capacity. Zero disables caching.
func WithCache(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.cache = NewEmbeddingCache(capacity)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service that loads its backend with load on first use.
func NewService(load Loader, opts ...Option) *Service {
	s := &Service{
		load:     load,
		maxChars: DefaultMaxChars,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceWithBackend creates a service around an already loaded backend.
func NewServiceWithBackend(b Backend, opts ...Option) *Service {
	return NewService(func(context.Context) (Backend, error) { return b, nil }, opts...)
}

// Loaded reports whether the backend has been loaded.
func (s *Service) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil
}

func (s *Service) getBackend(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	b := s.backend
	s.mu.Unlock()
	if b != nil {
		return b, nil
	}

	v, err, _ := s.group.Do("load", func() (interface{}, error) {
		s.mu.Lock()
		if s.backend != nil {
			b := s.backend
			s.mu.Unlock()
			return b, nil
		}
		s.mu.Unlock()

		s.logger.Info("loading embedding model")
		b, err := s.load(ctx)
		if err != nil {
			s.logger.Error("embedding model load failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
		}
		s.mu.Lock()
		s.backend = b
		s.mu.Unlock()
		s.logger.Info("embedding model loaded", zap.Int("dimensions", b.Dimensions()))
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Backend), nil
}

// Embed returns the vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in order. Every entry is validated before
// the model is called; the first empty entry fails the whole batch with an
// *EmptyInputError and no vectors are returned.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	prepared := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, &EmptyInputError{Index: i}
		}
		prepared[i] = truncateRunes(t, s.maxChars)
	}
	if len(prepared) == 0 {
		return [][]float32{}, nil
	}

	b, err := s.getBackend(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(prepared))
	var missing []string
	var missingIdx []int
	for i, t := range prepared {
		if s.cache != nil {
			if v, ok := s.cache.Get(t); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	s.logger.Debug("embedding batch",
		zap.Int("inputs", len(prepared)),
		zap.Int("cached", len(prepared)-len(missing)))

	vecs, err := b.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d inputs", len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		if s.cache != nil {
			s.cache.Set(missing[j], v)
		}
	}
	return out, nil
}

// CacheStats reports the embedding cache; zero when caching is disabled.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Dimensions loads the backend if needed and returns its vector length.
func (s *Service) Dimensions(ctx context.Context) (int, error) {
	b, err := s.getBackend(ctx)
	if err != nil {
		return 0, err
	}
	return b.Dimensions(), nil
}

// Close releases the backend if it was loaded.
func (s *Service) Close() error {
	s.mu.Lock()
	b := s.backend
	s.backend = nil
	s.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close()
}

func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
