// Package exporter writes the warehouse contents to a directory of JSON
// files for downstream analysis tools.
package exporter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/links"
	"github.com/tilde-sec/threatsift/internal/models"
	"github.com/tilde-sec/threatsift/internal/store"
)

// Manifest summarizes one export run.
type Manifest struct {
	ExportedAt time.Time      `json:"exported_at"`
	Counts     map[string]int `json:"counts"`
	Files      []string       `json:"files"`
	Repository string         `json:"repository,omitempty"`
	LinkGraph  map[string]int `json:"link_graph"`
}

// linkGraphFile is the serialized co-occurrence graph.
type linkGraphFile struct {
	Nodes []*links.EntityNode `json:"nodes"`
	Edges []links.Edge        `json:"edges"`
}

// Exporter reads from the warehouse and writes JSON files.
type Exporter struct {
	warehouse *store.Store
}

func New(warehouse *store.Store) *Exporter {
	return &Exporter{warehouse: warehouse}
}

// Export writes documents, entities, the link graph and a manifest into
// outDir. repositoryURL narrows the document set; entities and the link
// graph always cover the whole store.
func (e *Exporter) Export(ctx context.Context, outDir, repositoryURL string) (*Manifest, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errs.FileOp("mkdir", outDir, err)
	}

	documents, err := e.warehouse.Documents(ctx, repositoryURL)
	if err != nil {
		return nil, err
	}
	addresses, err := e.warehouse.Addresses(ctx)
	if err != nil {
		return nil, err
	}
	incidents, err := e.warehouse.Incidents(ctx)
	if err != nil {
		return nil, err
	}
	iocs, err := e.warehouse.Iocs(ctx)
	if err != nil {
		return nil, err
	}

	graph := links.BuildFromEntities(addresses, incidents, iocs)
	graphFile := linkGraphFile{Nodes: graph.Nodes(), Edges: graph.Edges()}

	files := map[string]interface{}{
		"documents.json": documents,
		"addresses.json": addresses,
		"incidents.json": incidents,
		"iocs.json":      iocs,
		"links.json":     graphFile,
	}
	names := []string{"documents.json", "addresses.json", "incidents.json", "iocs.json", "links.json"}
	for _, name := range names {
		if err := writeJSON(filepath.Join(outDir, name), files[name]); err != nil {
			return nil, err
		}
	}

	manifest := &Manifest{
		ExportedAt: time.Now().UTC(),
		Counts: map[string]int{
			"documents": len(documents),
			"addresses": len(addresses),
			"incidents": len(incidents),
			"iocs":      len(iocs),
		},
		Files:      append(names, "manifest.json"),
		Repository: repositoryURL,
		LinkGraph: map[string]int{
			"nodes": graph.NodeCount(),
			"edges": graph.EdgeCount(),
		},
	}
	if err := writeJSON(filepath.Join(outDir, "manifest.json"), manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func writeJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errs.FileOp("encode", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.FileOp("write", path, err)
	}
	return nil
}

// ReadDocuments loads a previously exported documents file, used by
// downstream tooling and tests to verify round trips.
func ReadDocuments(path string) ([]*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.FileOp("read", path, err)
	}
	var documents []*models.Document
	if err := json.Unmarshal(data, &documents); err != nil {
		return nil, errs.FileOp("parse", path, err)
	}
	return documents, nil
}
