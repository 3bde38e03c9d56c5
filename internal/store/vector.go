package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/models"
)

// vectorIndex wraps one chromem-go collection holding the document
// vectors. Embeddings are always supplied explicitly, so the
// collection's own embedding function is never used.
type vectorIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func openVectorIndex(path, collectionName string) (*vectorIndex, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, errs.Database("open vector index", err)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, errs.Database("create collection", err)
	}
	return &vectorIndex{db: db, collection: collection}, nil
}

// noEmbedding guards against accidental implicit embedding calls.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings must be provided explicitly")
}

// add indexes one document with its vector. The content-hash id makes
// re-adding the same content an overwrite of identical data.
func (v *vectorIndex) add(ctx context.Context, doc *models.Document, embedding []float32) error {
	err := v.collection.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: embedding,
		Metadata: map[string]string{
			"file_path":      doc.FilePath,
			"relative_path":  doc.RelativePath,
			"repository_url": doc.RepositoryURL,
			"file_size":      strconv.FormatInt(doc.FileSize, 10),
			"last_modified":  doc.LastModified.UTC().Format(time.RFC3339),
			"attribution":    doc.Attribution,
		},
	})
	if err != nil {
		return errs.Database("vector add", err)
	}
	return nil
}

// search runs a KNN query. repositoryURL narrows results to one
// repository; empty searches everything.
func (v *vectorIndex) search(ctx context.Context, embedding []float32, limit int, repositoryURL string) ([]*models.SearchResult, error) {
	count := v.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	var where map[string]string
	if repositoryURL != "" {
		where = map[string]string{"repository_url": repositoryURL}
	}

	hits, err := v.collection.QueryEmbedding(ctx, embedding, limit, where, nil)
	if err != nil {
		return nil, errs.Database("vector search", err)
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		distance := 1.0 - float64(hit.Similarity)
		r := &models.SearchResult{
			ID:            hit.ID,
			FilePath:      hit.Metadata["file_path"],
			RelativePath:  hit.Metadata["relative_path"],
			Content:       hit.Content,
			RepositoryURL: hit.Metadata["repository_url"],
			Distance:      distance,
			Score:         models.ScoreFromDistance(distance),
		}
		if size, err := strconv.ParseInt(hit.Metadata["file_size"], 10, 64); err == nil {
			r.FileSize = size
		}
		if mod, err := time.Parse(time.RFC3339, hit.Metadata["last_modified"]); err == nil {
			r.LastModified = mod
		}
		results = append(results, r)
	}
	return results, nil
}

// deleteByRepository drops every vector belonging to the repository.
func (v *vectorIndex) deleteByRepository(ctx context.Context, repositoryURL string) error {
	err := v.collection.Delete(ctx, map[string]string{"repository_url": repositoryURL}, nil)
	if err != nil {
		return errs.Database("vector delete", err)
	}
	return nil
}

func (v *vectorIndex) count() int { return v.collection.Count() }
