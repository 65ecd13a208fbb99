package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/chunker"
	"github.com/bicesterbug/bbug-planning-reporter/internal/classify"
	"github.com/bicesterbug/bbug-planning-reporter/internal/config"
	"github.com/bicesterbug/bbug-planning-reporter/internal/embedding"
	"github.com/bicesterbug/bbug-planning-reporter/internal/extract"
	"github.com/bicesterbug/bbug-planning-reporter/internal/indexer"
	"github.com/bicesterbug/bbug-planning-reporter/internal/keyword"
	"github.com/bicesterbug/bbug-planning-reporter/internal/progress"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
	"github.com/bicesterbug/bbug-planning-reporter/internal/storage"
)

// Components holds the wired services a command needs.
type Components struct {
	Store        storage.Store
	Embedder     *embedding.Service
	KeywordIndex *keyword.BleveIndex
	Indexer      *indexer.Indexer
	Retrieval    *retrieval.Service
	Observers    []progress.Observer

	redis *redis.Client
	kafka *kafka.Writer
}

// Close releases every component that holds a resource.
func (c *Components) Close() {
	if c.kafka != nil {
		_ = c.kafka.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	opts := []storage.Option{
		storage.WithDistanceScale(cfg.Storage.DistanceScale),
		storage.WithLogger(logger),
	}
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		return storage.NewPostgresStore(ctx, cfg.Storage.PostgresDSN, opts...)
	default:
		return storage.NewSQLiteStore(ctx, cfg.Storage.DatabasePath, opts...)
	}
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) *embedding.Service {
	ec := cfg.Embedding
	var load embedding.Loader
	switch ec.Backend {
	case config.EmbeddingOpenAI:
		load = embedding.OpenAILoader(embedding.OpenAIConfig{
			BaseURL:    ec.BaseURL,
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Timeout:    60 * time.Second,
		}, logger)
	case config.EmbeddingMock:
		load = func(context.Context) (embedding.Backend, error) {
			return embedding.NewMockBackend(ec.Dimensions), nil
		}
	default:
		load = embedding.ONNXLoader(ec.ModelPath, ec.Dimensions, ec.MaxTokens)
	}
	return embedding.NewService(load,
		embedding.WithMaxChars(ec.MaxChars),
		embedding.WithCache(ec.CacheSize),
		embedding.WithLogger(logger),
	)
}

// progressObservers connects the configured Redis and Kafka sinks. A Redis
// server that cannot be reached is logged and skipped.
func (c *Components) progressObservers(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	pc := cfg.Progress
	if pc.RedisAddr != "" {
		client, err := progress.NewRedisClient(ctx, pc.RedisAddr, pc.RedisPassword, pc.RedisDB)
		if err != nil {
			logger.Warn("redis progress disabled", zap.String("addr", pc.RedisAddr), zap.Error(err))
		} else {
			c.redis = client
			c.Observers = append(c.Observers, progress.NewRedisObserver(client, pc.RedisChannel))
		}
	}
	if len(pc.KafkaBrokers) > 0 {
		c.kafka = progress.NewKafkaWriter(pc.KafkaBrokers, pc.KafkaTopic)
		c.Observers = append(c.Observers, progress.NewKafkaObserver(c.kafka))
	}
}

// buildComponents wires storage, embedding, extraction and retrieval from cfg.
// The embedding model is not loaded until first use.
func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = store

	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.KeywordIndex = kw

	c.Embedder = newEmbedder(cfg, logger)

	ic := cfg.Ingest
	extractor := extract.NewExtractor(
		extract.WithImageThreshold(ic.ImageThreshold),
		extract.WithMinPageChars(ic.MinPageChars),
		extract.WithLogger(logger),
	)
	c.Indexer = indexer.NewIndexer(store, c.Embedder, extractor,
		indexer.WithKeywordIndex(kw),
		indexer.WithChunker(chunker.NewChunker(ic.ChunkSize, ic.ChunkOverlap)),
		indexer.WithClassifier(classify.Default()),
		indexer.WithConcurrency(ic.Concurrency),
		indexer.WithLogger(logger),
	)
	c.Retrieval = retrieval.NewService(store, c.Embedder,
		retrieval.WithKeywordIndex(kw),
		retrieval.WithMaxLimit(cfg.Search.MaxLimit),
		retrieval.WithLogger(logger),
	)
	c.progressObservers(ctx, cfg, logger)

	logger.Debug("components initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("embedding", cfg.Embedding.Backend),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)
	return c, nil
}
