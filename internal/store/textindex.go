package store

import (
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"

	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/models"
)

// indexedDocument is the flat shape stored in the bleve index.
type indexedDocument struct {
	Content       string `json:"content"`
	RelativePath  string `json:"relative_path"`
	FilePath      string `json:"file_path"`
	RepositoryURL string `json:"repository_url"`
	FileSize      int64  `json:"file_size"`
	LastModified  string `json:"last_modified"`
}

// textIndex provides keyword search over document content via bleve.
type textIndex struct {
	index bleve.Index
}

func openTextIndex(path string) (*textIndex, error) {
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, errs.Database("open text index", err)
		}
		return &textIndex{index: idx}, nil
	}

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("content", contentField)

	// Exact-match fields keep the raw value so term filters work.
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("repository_url", keywordField)
	docMapping.AddFieldMappingsAt("relative_path", keywordField)
	docMapping.AddFieldMappingsAt("file_path", keywordField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping

	idx, err := bleve.New(path, indexMapping)
	if err != nil {
		return nil, errs.Database("create text index", err)
	}
	return &textIndex{index: idx}, nil
}

func (t *textIndex) close() error { return t.index.Close() }

func (t *textIndex) add(doc *models.Document) error {
	err := t.index.Index(doc.ID, indexedDocument{
		Content:       doc.Content,
		RelativePath:  doc.RelativePath,
		FilePath:      doc.FilePath,
		RepositoryURL: doc.RepositoryURL,
		FileSize:      doc.FileSize,
		LastModified:  doc.LastModified.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errs.Database("text index add", err)
	}
	return nil
}

// search runs a match query over content, optionally filtered to one
// repository. Scores are bleve relevance scores, reported as-is with
// distance left at zero.
func (t *textIndex) search(query string, limit int, repositoryURL string) ([]*models.SearchResult, error) {
	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	var searchQuery = bleve.NewConjunctionQuery(match)
	if repositoryURL != "" {
		repoTerm := bleve.NewTermQuery(repositoryURL)
		repoTerm.SetField("repository_url")
		searchQuery = bleve.NewConjunctionQuery(match, repoTerm)
	}

	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	req.Fields = []string{"content", "relative_path", "file_path", "repository_url", "file_size", "last_modified"}

	res, err := t.index.Search(req)
	if err != nil {
		return nil, errs.Database("text search", err)
	}

	results := make([]*models.SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := &models.SearchResult{ID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["content"].(string); ok {
			r.Content = v
		}
		if v, ok := hit.Fields["relative_path"].(string); ok {
			r.RelativePath = v
		}
		if v, ok := hit.Fields["file_path"].(string); ok {
			r.FilePath = v
		}
		if v, ok := hit.Fields["repository_url"].(string); ok {
			r.RepositoryURL = v
		}
		if v, ok := hit.Fields["file_size"].(float64); ok {
			r.FileSize = int64(v)
		}
		if v, ok := hit.Fields["last_modified"].(string); ok {
			if mod, err := time.Parse(time.RFC3339, v); err == nil {
				r.LastModified = mod
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// deleteByRepository finds and removes every indexed document of the
// repository.
func (t *textIndex) deleteByRepository(repositoryURL string) error {
	repoTerm := bleve.NewTermQuery(repositoryURL)
	repoTerm.SetField("repository_url")

	req := bleve.NewSearchRequestOptions(repoTerm, 10_000, 0, false)
	res, err := t.index.Search(req)
	if err != nil {
		return errs.Database("text index lookup", err)
	}

	batch := t.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := t.index.Batch(batch); err != nil {
		return errs.Database("text index delete", err)
	}
	return nil
}

func (t *textIndex) count() (uint64, error) {
	n, err := t.index.DocCount()
	if err != nil {
		return 0, errs.Database("text index count", err)
	}
	return n, nil
}
