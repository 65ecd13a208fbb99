// Package config provides configuration loading and structs for the document store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bicesterbug/bbug-planning-reporter/internal/watcher"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Embedding backends.
const (
	EmbeddingONNX   = "onnx"
	EmbeddingOpenAI = "openai"
	EmbeddingMock   = "mock"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Progress  ProgressConfig  `yaml:"progress"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MCPPath mounts the streamable HTTP MCP endpoint on the API server. Empty disables it.
	MCPPath string `yaml:"mcp_path"`
}

// StorageConfig selects the store backend and where it keeps data.
type StorageConfig struct {
	Backend        string  `yaml:"backend"`
	DatabasePath   string  `yaml:"database_path"`
	BleveIndexPath string  `yaml:"bleve_index_path"`
	PostgresDSN    string  `yaml:"postgres_dsn"`
	DistanceScale  float64 `yaml:"distance_scale"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Backend    string `yaml:"backend"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	MaxChars   int    `yaml:"max_chars"`
	CacheSize  int    `yaml:"cache_size"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
}

// SearchConfig holds retrieval limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// IngestConfig holds chunking, extraction and batch settings.
type IngestConfig struct {
	ChunkSize      int     `yaml:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
	Concurrency    int     `yaml:"concurrency"`
	ImageThreshold float64 `yaml:"image_threshold"`
	MinPageChars   int     `yaml:"min_page_chars"`
}

// ProgressConfig configures where batch progress is published. Empty values
// disable the corresponding observer.
type ProgressConfig struct {
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	RedisChannel  string   `yaml:"redis_channel"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
}

// WatchConfig holds inbox watch settings.
type WatchConfig struct {
	Inboxes        []watcher.Inbox `yaml:"inboxes"`
	Recursive      *bool           `yaml:"recursive"`
	DebounceMillis int             `yaml:"debounce_ms"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies
// DOCSTORE_* environment overrides and defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(&cfg, filepath.Dir(path))
}

// Default returns the configuration used when no file exists. Relative paths
// resolve against the working directory.
func Default() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return finish(&Config{}, wd)
}

func finish(cfg *Config, baseDir string) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, baseDir)
	if cfg.Storage.BleveIndexPath != "" {
		cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, baseDir)
	}
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, baseDir)
	for i := range cfg.Watch.Inboxes {
		cfg.Watch.Inboxes[i].Path = expandPath(cfg.Watch.Inboxes[i].Path, baseDir)
	}
	return cfg, nil
}

// Validate rejects settings that cannot be served.
func Validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	switch cfg.Embedding.Backend {
	case EmbeddingONNX, EmbeddingMock:
	case EmbeddingOpenAI:
		if cfg.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding.base_url is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown embedding backend %q", cfg.Embedding.Backend)
	}
	if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkSize)
	}
	for _, in := range cfg.Watch.Inboxes {
		if in.Path == "" || strings.TrimSpace(in.CaseReference) == "" {
			return fmt.Errorf("watch inbox needs both path and case_reference")
		}
	}
	return nil
}

// applyEnv overrides endpoints and secrets from the environment.
func applyEnv(cfg *Config) error {
	setString(&cfg.Storage.Backend, "DOCSTORE_STORAGE_BACKEND")
	setString(&cfg.Storage.PostgresDSN, "DOCSTORE_POSTGRES_DSN")
	setString(&cfg.Embedding.Backend, "DOCSTORE_EMBEDDING_BACKEND")
	setString(&cfg.Embedding.BaseURL, "DOCSTORE_EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.APIKey, "DOCSTORE_EMBEDDING_API_KEY")
	setString(&cfg.Embedding.Model, "DOCSTORE_EMBEDDING_MODEL")
	setString(&cfg.Progress.RedisAddr, "DOCSTORE_REDIS_ADDR")
	setString(&cfg.Progress.RedisPassword, "DOCSTORE_REDIS_PASSWORD")
	setString(&cfg.Progress.KafkaTopic, "DOCSTORE_KAFKA_TOPIC")
	if v := strings.TrimSpace(os.Getenv("DOCSTORE_KAFKA_BROKERS")); v != "" {
		cfg.Progress.KafkaBrokers = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("DOCSTORE_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCSTORE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Save writes the config to path. Used for persisting watch inbox add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
