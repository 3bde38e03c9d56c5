package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/models"
)

const (
	entityDBFile  = "threatsift.db"
	vectorDirName = "vectors"
	textIndexName = "textindex.bleve"
)

// Store is the warehouse facade: relational entity tables, the vector
// collection, and the keyword index behind one API. Insertion is
// idempotent on content hash across all three.
type Store struct {
	cfg      config.DatabaseConfig
	entities *entityStore
	vectors  *vectorIndex
	text     *textIndex
	embedder Embedder
}

// Open connects all warehouse components under cfg.DataDir, creating
// the directory and schema as needed.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	embedder, err := NewAPIEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	return OpenWithEmbedder(cfg, embedder)
}

// OpenWithEmbedder is Open with an injected embedder.
func OpenWithEmbedder(cfg config.DatabaseConfig, embedder Embedder) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errs.FileOp("mkdir", cfg.DataDir, err)
	}

	entities, err := openEntityStore(filepath.Join(cfg.DataDir, entityDBFile), cfg)
	if err != nil {
		return nil, err
	}
	if err := entities.createSchema(context.Background()); err != nil {
		entities.close()
		return nil, err
	}

	vectors, err := openVectorIndex(filepath.Join(cfg.DataDir, vectorDirName), cfg.DocumentsTable)
	if err != nil {
		entities.close()
		return nil, err
	}

	text, err := openTextIndex(filepath.Join(cfg.DataDir, textIndexName))
	if err != nil {
		entities.close()
		return nil, err
	}

	return &Store{
		cfg:      cfg,
		entities: entities,
		vectors:  vectors,
		text:     text,
		embedder: embedder,
	}, nil
}

// Close releases every component.
func (s *Store) Close() error {
	textErr := s.text.close()
	entityErr := s.entities.close()
	if entityErr != nil {
		return entityErr
	}
	return textErr
}

// Ping verifies the warehouse answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.entities.ping(ctx)
}

// CreateSchema (re)creates the entity tables.
func (s *Store) CreateSchema(ctx context.Context) error {
	return s.entities.createSchema(ctx)
}

// VerifySchema checks the entity tables exist.
func (s *Store) VerifySchema(ctx context.Context) error {
	return s.entities.verifySchema(ctx)
}

// InsertDocument writes the document and its entities everywhere.
// Returns false without touching the indexes when the content hash is
// already stored.
func (s *Store) InsertDocument(ctx context.Context, doc *models.Document, addresses []*models.CryptoAddress, incidents []*models.Incident, iocs []*models.Ioc) (bool, error) {
	inserted, err := s.entities.insertDocument(ctx, doc, addresses, incidents, iocs)
	if err != nil || !inserted {
		return inserted, err
	}

	embedding, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return true, errs.Database("embed", err)
	}
	if err := s.vectors.add(ctx, doc, embedding); err != nil {
		return true, err
	}
	if err := s.text.add(doc); err != nil {
		return true, err
	}
	return true, nil
}

// DocumentHashes returns every stored content digest for change
// detection.
func (s *Store) DocumentHashes(ctx context.Context) (map[string]struct{}, error) {
	return s.entities.documentHashes(ctx)
}

// Counts returns per-table row counts.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	return s.entities.counts(ctx)
}

// DocumentCount returns the number of stored documents.
func (s *Store) DocumentCount(ctx context.Context) (int64, error) {
	counts, err := s.entities.counts(ctx)
	if err != nil {
		return 0, err
	}
	return counts[s.cfg.DocumentsTable], nil
}

// DeleteRepository removes everything ingested from the repository,
// returning the number of documents dropped.
func (s *Store) DeleteRepository(ctx context.Context, repositoryURL string) (int64, error) {
	removed, err := s.entities.deleteByRepository(ctx, repositoryURL)
	if err != nil {
		return 0, err
	}
	if err := s.vectors.deleteByRepository(ctx, repositoryURL); err != nil {
		return removed, err
	}
	if err := s.text.deleteByRepository(repositoryURL); err != nil {
		return removed, err
	}
	return removed, nil
}

// SearchSemantic embeds the query and runs a KNN search.
func (s *Store) SearchSemantic(ctx context.Context, query string, limit int, repositoryURL string) ([]*models.SearchResult, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errs.Database("embed query", err)
	}
	return s.vectors.search(ctx, embedding, limit, repositoryURL)
}

// SearchKeyword runs a full-text match query.
func (s *Store) SearchKeyword(query string, limit int, repositoryURL string) ([]*models.SearchResult, error) {
	return s.text.search(query, limit, repositoryURL)
}

// Reset drops and recreates the entity tables and clears both indexes.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.entities.reset(ctx); err != nil {
		return err
	}
	if err := s.entities.createSchema(ctx); err != nil {
		return err
	}

	if err := s.vectors.db.DeleteCollection(s.cfg.DocumentsTable); err != nil {
		return errs.Database("reset vectors", err)
	}
	collection, err := s.vectors.db.GetOrCreateCollection(s.cfg.DocumentsTable, nil, noEmbedding)
	if err != nil {
		return errs.Database("reset vectors", err)
	}
	s.vectors.collection = collection

	if err := s.text.close(); err != nil {
		return err
	}
	textPath := filepath.Join(s.cfg.DataDir, textIndexName)
	if err := os.RemoveAll(textPath); err != nil {
		return errs.FileOp("remove", textPath, err)
	}
	text, err := openTextIndex(textPath)
	if err != nil {
		return err
	}
	s.text = text
	return nil
}

// Documents returns stored documents, optionally scoped to one
// repository.
func (s *Store) Documents(ctx context.Context, repositoryURL string) ([]*models.Document, error) {
	return s.entities.documentsByRepository(ctx, repositoryURL)
}

// Addresses returns every stored crypto address row.
func (s *Store) Addresses(ctx context.Context) ([]*models.CryptoAddress, error) {
	return s.entities.addressRows(ctx)
}

// Incidents returns every stored incident row.
func (s *Store) Incidents(ctx context.Context) ([]*models.Incident, error) {
	return s.entities.incidentRows(ctx)
}

// Iocs returns every stored indicator row.
func (s *Store) Iocs(ctx context.Context) ([]*models.Ioc, error) {
	return s.entities.iocRows(ctx)
}

// VectorCount returns the number of indexed vectors.
func (s *Store) VectorCount() int { return s.vectors.count() }
