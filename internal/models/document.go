// Package models holds the domain types shared across the pipeline,
// the store, and the service layer.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is one ingested markdown file. Identity is the SHA-256 hex
// digest of the raw content, so re-ingesting unchanged files is a
// no-op at the store level.
type Document struct {
	ID            string    `json:"id"`
	FilePath      string    `json:"file_path"`
	RelativePath  string    `json:"relative_path"`
	RepositoryURL string    `json:"repository_url"`
	Content       string    `json:"content"`
	ContentHash   string    `json:"content_hash"`
	FileSize      int64     `json:"file_size"`
	LastModified  time.Time `json:"last_modified"`
	ParsedAt      time.Time `json:"parsed_at"`
	Attribution   string    `json:"attribution,omitempty"`
	Topic         string    `json:"topic,omitempty"`
	Normalized    bool      `json:"normalized"`
}

// NewDocument builds a Document from raw file content. The content
// hash doubles as the document id.
func NewDocument(filePath, relativePath, repositoryURL, content string, fileSize int64, lastModified time.Time) *Document {
	hash := HashContent(content)
	return &Document{
		ID:            hash,
		FilePath:      filePath,
		RelativePath:  relativePath,
		RepositoryURL: repositoryURL,
		Content:       content,
		ContentHash:   hash,
		FileSize:      fileSize,
		LastModified:  lastModified,
		ParsedAt:      time.Now().UTC(),
	}
}

// MarkNormalized records that the stored content has been normalized.
func (d *Document) MarkNormalized() {
	d.Normalized = true
}

// HashContent returns the lowercase SHA-256 hex digest of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
