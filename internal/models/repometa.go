package models

import "time"

// RepositoryMetadata records one ingested repository in the registry.
// Subdirectories narrows which parts of the repository were scanned;
// empty means the whole tree.
type RepositoryMetadata struct {
	URL            string    `json:"url"`
	Branch         string    `json:"branch"`
	CommitHash     string    `json:"commit_hash,omitempty"`
	LocalPath      string    `json:"local_path"`
	Subdirectories []string  `json:"subdirectories,omitempty"`
	FileCount      int       `json:"file_count"`
	IngestedAt     time.Time `json:"ingested_at"`
}
