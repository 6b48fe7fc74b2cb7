// Package config provides configuration for the vector layer service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transformer names accepted by ImportConfig.Transformer.
const (
	TransformerProj     = "proj"
	TransformerMercator = "mercator"
)

// Config holds the configuration of a vector layer instance.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Store   StoreConfig   `json:"store" yaml:"store"`
	Import  ImportConfig  `json:"import" yaml:"import"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StoreConfig holds relational store configuration.
type StoreConfig struct {
	// Path is the main (metadata) database file
	Path string `json:"path" yaml:"path"`

	// LayerPath is the layer namespace database file
	LayerPath string `json:"layer_path" yaml:"layer_path"`

	// BusyTimeout is how long a writer waits on a locked database
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	// MaxOpenConns is the maximum number of SQLite connections
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`
}

// ImportConfig holds import pipeline configuration.
type ImportConfig struct {
	// ScratchDir holds per-import extraction directories
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir"`

	// TargetSRID is the CRS layers are stored in unless a request overrides it
	TargetSRID int `json:"target_srid" yaml:"target_srid"`

	// Encoding is the default legacy encoding hint; empty means none
	Encoding string `json:"encoding" yaml:"encoding"`

	// Transformer selects the coordinate transform: proj or mercator
	Transformer string `json:"transformer" yaml:"transformer"`

	// TransformerCacheSize bounds cached PROJ pipelines
	TransformerCacheSize int `json:"transformer_cache_size" yaml:"transformer_cache_size"`
}

// StorageConfig holds staged-upload storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is a zerolog level name: debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Console switches from JSON lines to human-readable output
	Console bool `json:"console" yaml:"console"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr serves /metrics while a command runs; empty disables the endpoint
	Addr string `json:"addr" yaml:"addr"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/vectorlayer",
		Store: StoreConfig{
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 4,
		},
		Import: ImportConfig{
			TargetSRID:           3857,
			Transformer:          TransformerProj,
			TransformerCacheSize: 64,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve fills empty paths from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/vectorlayer"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "vectorlayer.db")
	}
	if c.Store.LayerPath == "" {
		c.Store.LayerPath = filepath.Join(c.DataDir, "layers.db")
	}
	if c.Import.ScratchDir == "" {
		c.Import.ScratchDir = filepath.Join(c.DataDir, "scratch")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "uploads")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Import.TargetSRID <= 0 {
		return fmt.Errorf("import.target_srid must be positive, got %d", c.Import.TargetSRID)
	}

	switch c.Import.Transformer {
	case TransformerProj, TransformerMercator:
	default:
		return fmt.Errorf("invalid import.transformer: %s (must be proj or mercator)", c.Import.Transformer)
	}

	if c.Import.Transformer == TransformerMercator && c.Import.TargetSRID != 4326 && c.Import.TargetSRID != 3857 {
		return fmt.Errorf("mercator transformer only supports target_srid 4326 or 3857, got %d", c.Import.TargetSRID)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Store.MaxOpenConns < 0 {
		return fmt.Errorf("store.max_open_conns must not be negative, got %d", c.Store.MaxOpenConns)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg from environment variables with the
// VECTORLAYER_ prefix. Unparseable numbers are ignored.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("VECTORLAYER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Store configuration
	if v := os.Getenv("VECTORLAYER_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("VECTORLAYER_STORE_LAYER_PATH"); v != "" {
		cfg.Store.LayerPath = v
	}
	if v := os.Getenv("VECTORLAYER_STORE_BUSY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.BusyTimeout = d
		}
	}
	if v := os.Getenv("VECTORLAYER_STORE_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxOpenConns = n
		}
	}

	// Import configuration
	if v := os.Getenv("VECTORLAYER_IMPORT_SCRATCH_DIR"); v != "" {
		cfg.Import.ScratchDir = v
	}
	if v := os.Getenv("VECTORLAYER_IMPORT_TARGET_SRID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Import.TargetSRID = n
		}
	}
	if v := os.Getenv("VECTORLAYER_IMPORT_ENCODING"); v != "" {
		cfg.Import.Encoding = v
	}
	if v := os.Getenv("VECTORLAYER_IMPORT_TRANSFORMER"); v != "" {
		cfg.Import.Transformer = v
	}

	// Storage configuration
	if v := os.Getenv("VECTORLAYER_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("VECTORLAYER_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("VECTORLAYER_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("VECTORLAYER_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("VECTORLAYER_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("VECTORLAYER_S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Log and metrics
	if v := os.Getenv("VECTORLAYER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VECTORLAYER_LOG_CONSOLE"); v != "" {
		cfg.Log.Console = v == "true" || v == "1"
	}
	if v := os.Getenv("VECTORLAYER_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("VECTORLAYER_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Store.Path),
		filepath.Dir(c.Store.LayerPath),
		c.Import.ScratchDir,
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
