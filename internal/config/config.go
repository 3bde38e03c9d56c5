// Package config defines the threatsift configuration and its loader.
// Configuration is layered: built-in defaults, then an optional YAML
// file, then THREATSIFT_* environment variables.
package config

import "time"

// Config is the root configuration for all commands and the service.
type Config struct {
	Repository RepositoryConfig `mapstructure:"repository" yaml:"repository"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Service    ServiceConfig    `mapstructure:"service" yaml:"service"`
}

// RepositoryConfig describes the source git repository holding the
// markdown corpus.
type RepositoryConfig struct {
	SourceURL   string `mapstructure:"source_url" yaml:"source_url"`
	LocalPath   string `mapstructure:"local_path" yaml:"local_path"`
	Branch      string `mapstructure:"branch" yaml:"branch"`
	SyncOnStart bool   `mapstructure:"sync_on_start" yaml:"sync_on_start"`
}

// DatabaseConfig describes the document warehouse: the sqlite entity
// tables, the vector collection, and the embedding endpoint.
type DatabaseConfig struct {
	DataDir        string          `mapstructure:"data_dir" yaml:"data_dir"`
	DocumentsTable string          `mapstructure:"documents_table" yaml:"documents_table"`
	AddressesTable string          `mapstructure:"addresses_table" yaml:"addresses_table"`
	IncidentsTable string          `mapstructure:"incidents_table" yaml:"incidents_table"`
	IocsTable      string          `mapstructure:"iocs_table" yaml:"iocs_table"`
	BatchSize      int             `mapstructure:"batch_size" yaml:"batch_size"`
	Embedding      EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
}

// EmbeddingConfig describes the embedding API. APIKey is normally
// injected via THREATSIFT_DATABASE_EMBEDDING_API_KEY rather than the
// config file.
type EmbeddingConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	Model      string `mapstructure:"model" yaml:"model"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
}

// PipelineConfig controls the ingestion pipeline.
type PipelineConfig struct {
	ParallelWorkers int      `mapstructure:"parallel_workers" yaml:"parallel_workers"`
	SkipPatterns    []string `mapstructure:"skip_patterns" yaml:"skip_patterns"`
	ForceReprocess  bool     `mapstructure:"force_reprocess" yaml:"force_reprocess"`
	MaxFileSizeMB   int      `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
}

// ExtractionConfig toggles the entity extractors.
type ExtractionConfig struct {
	ExtractCryptoAddresses bool `mapstructure:"extract_crypto_addresses" yaml:"extract_crypto_addresses"`
	ExtractIncidents       bool `mapstructure:"extract_incidents" yaml:"extract_incidents"`
	ExtractIocs            bool `mapstructure:"extract_iocs" yaml:"extract_iocs"`
	NormalizeMarkdown      bool `mapstructure:"normalize_markdown" yaml:"normalize_markdown"`
}

// ServiceConfig controls the MCP service layer.
type ServiceConfig struct {
	RegistryPath string        `mapstructure:"registry_path" yaml:"registry_path"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
}

// MaxFileSizeBytes returns the pipeline size ceiling in bytes.
func (c *PipelineConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Repository: RepositoryConfig{
			LocalPath:   "./data/corpus",
			Branch:      "main",
			SyncOnStart: true,
		},
		Database: DatabaseConfig{
			DataDir:        "./data/warehouse",
			DocumentsTable: "documents",
			AddressesTable: "crypto_addresses",
			IncidentsTable: "incidents",
			IocsTable:      "iocs",
			BatchSize:      100,
			Embedding: EmbeddingConfig{
				Model:      "text-embedding-3-small",
				Dimensions: 768,
			},
		},
		Pipeline: PipelineConfig{
			ParallelWorkers: 8,
			SkipPatterns:    []string{"*.zip", "*.pdf", ".git/*"},
			MaxFileSizeMB:   10,
		},
		Extraction: ExtractionConfig{
			ExtractCryptoAddresses: true,
			ExtractIncidents:       true,
			ExtractIocs:            true,
			NormalizeMarkdown:      true,
		},
		Service: ServiceConfig{
			RegistryPath: "./data/repositories.json",
			LockTimeout:  30 * time.Second,
		},
	}
}
