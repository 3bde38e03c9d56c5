package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "THREATSIFT"

// Load reads configuration from the given file path (optional), the
// environment, and the built-in defaults, in reverse precedence.
// An empty path means no config file; a missing file at a non-empty
// path is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("threatsift")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.threatsift")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// No config file is fine, defaults plus env apply.
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("repository.source_url", d.Repository.SourceURL)
	v.SetDefault("repository.local_path", d.Repository.LocalPath)
	v.SetDefault("repository.branch", d.Repository.Branch)
	v.SetDefault("repository.sync_on_start", d.Repository.SyncOnStart)

	v.SetDefault("database.data_dir", d.Database.DataDir)
	v.SetDefault("database.documents_table", d.Database.DocumentsTable)
	v.SetDefault("database.addresses_table", d.Database.AddressesTable)
	v.SetDefault("database.incidents_table", d.Database.IncidentsTable)
	v.SetDefault("database.iocs_table", d.Database.IocsTable)
	v.SetDefault("database.batch_size", d.Database.BatchSize)
	v.SetDefault("database.embedding.endpoint", d.Database.Embedding.Endpoint)
	v.SetDefault("database.embedding.model", d.Database.Embedding.Model)
	v.SetDefault("database.embedding.dimensions", d.Database.Embedding.Dimensions)
	v.SetDefault("database.embedding.api_key", d.Database.Embedding.APIKey)

	v.SetDefault("pipeline.parallel_workers", d.Pipeline.ParallelWorkers)
	v.SetDefault("pipeline.skip_patterns", d.Pipeline.SkipPatterns)
	v.SetDefault("pipeline.force_reprocess", d.Pipeline.ForceReprocess)
	v.SetDefault("pipeline.max_file_size_mb", d.Pipeline.MaxFileSizeMB)

	v.SetDefault("extraction.extract_crypto_addresses", d.Extraction.ExtractCryptoAddresses)
	v.SetDefault("extraction.extract_incidents", d.Extraction.ExtractIncidents)
	v.SetDefault("extraction.extract_iocs", d.Extraction.ExtractIocs)
	v.SetDefault("extraction.normalize_markdown", d.Extraction.NormalizeMarkdown)

	v.SetDefault("service.registry_path", d.Service.RegistryPath)
	v.SetDefault("service.lock_timeout", d.Service.LockTimeout)
}

// bindEnvKeys binds each config key explicitly so environment variables
// work even when the key is absent from the config file.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"repository.source_url",
		"repository.local_path",
		"repository.branch",
		"repository.sync_on_start",
		"database.data_dir",
		"database.batch_size",
		"database.embedding.endpoint",
		"database.embedding.model",
		"database.embedding.dimensions",
		"database.embedding.api_key",
		"pipeline.parallel_workers",
		"pipeline.force_reprocess",
		"pipeline.max_file_size_mb",
		"service.registry_path",
		"service.lock_timeout",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}
