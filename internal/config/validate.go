package config

import (
	"fmt"
	"strings"

	"github.com/tilde-sec/threatsift/internal/errs"
)

// Validate checks that the configuration is complete and internally
// consistent. All problems are reported at once.
func Validate(cfg *Config) error {
	var msgs []string

	if cfg.Pipeline.ParallelWorkers <= 0 {
		msgs = append(msgs, fmt.Sprintf("pipeline.parallel_workers must be positive, got %d", cfg.Pipeline.ParallelWorkers))
	}
	if cfg.Database.BatchSize <= 0 {
		msgs = append(msgs, fmt.Sprintf("database.batch_size must be positive, got %d", cfg.Database.BatchSize))
	}
	if cfg.Pipeline.MaxFileSizeMB <= 0 {
		msgs = append(msgs, fmt.Sprintf("pipeline.max_file_size_mb must be positive, got %d", cfg.Pipeline.MaxFileSizeMB))
	}
	if cfg.Database.Embedding.Dimensions <= 0 {
		msgs = append(msgs, fmt.Sprintf("database.embedding.dimensions must be positive, got %d", cfg.Database.Embedding.Dimensions))
	}
	if strings.TrimSpace(cfg.Repository.LocalPath) == "" {
		msgs = append(msgs, "repository.local_path is required")
	}
	if strings.TrimSpace(cfg.Database.DataDir) == "" {
		msgs = append(msgs, "database.data_dir is required")
	}
	for _, table := range []struct{ key, name string }{
		{"database.documents_table", cfg.Database.DocumentsTable},
		{"database.addresses_table", cfg.Database.AddressesTable},
		{"database.incidents_table", cfg.Database.IncidentsTable},
		{"database.iocs_table", cfg.Database.IocsTable},
	} {
		if strings.TrimSpace(table.name) == "" {
			msgs = append(msgs, table.key+" is required")
		}
	}
	if cfg.Service.LockTimeout <= 0 {
		msgs = append(msgs, fmt.Sprintf("service.lock_timeout must be positive, got %s", cfg.Service.LockTimeout))
	}

	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) == 1 {
		return errs.Configuration("%s", msgs[0])
	}
	return errs.Configuration("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
