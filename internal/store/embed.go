// Package store is the document warehouse: sqlite entity tables, a
// chromem vector collection for semantic search, and a bleve index for
// keyword search, behind one facade.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maypok86/otter"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/models"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

const embedCacheCapacity = 10_000

// APIEmbedder calls an OpenAI-compatible embeddings endpoint. Results
// are cached by content digest, and any failure or dimension mismatch
// falls back to a deterministic local embedding so ingestion never
// stalls on the API.
type APIEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client
	cache  otter.Cache[string, []float32]
}

// NewAPIEmbedder builds the embedder. With an empty endpoint every
// call uses the deterministic fallback.
func NewAPIEmbedder(cfg config.EmbeddingConfig) (*APIEmbedder, error) {
	cache, err := otter.MustBuilder[string, []float32](embedCacheCapacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding cache: %w", err)
	}
	return &APIEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  cache,
	}, nil
}

func (e *APIEmbedder) Dimensions() int { return e.cfg.Dimensions }

// Embed returns a vector for text. The error return is always nil
// because the fallback embedding cannot fail; the signature stays
// general for other Embedder implementations.
func (e *APIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := models.HashContent(text)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	vector := e.embedRemote(ctx, text)
	if vector == nil {
		vector = DeterministicEmbedding(text, e.cfg.Dimensions)
	}

	e.cache.Set(key, vector)
	return vector, nil
}

// embedRemote returns nil when the API is unavailable or returns the
// wrong shape.
func (e *APIEmbedder) embedRemote(ctx context.Context, text string) []float32 {
	if e.cfg.Endpoint == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"model": e.cfg.Model,
		"input": []string{text},
	})
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		slog.Warn("embedding API unreachable, using fallback", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("embedding API error, using fallback", "status", resp.StatusCode, "body", string(body))
		return nil
	}

	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Data) == 0 {
		slog.Warn("embedding API returned malformed response, using fallback")
		return nil
	}

	raw := parsed.Data[0].Embedding
	if len(raw) != e.cfg.Dimensions {
		slog.Warn("embedding dimension mismatch, using fallback",
			"want", e.cfg.Dimensions, "got", len(raw))
		return nil
	}

	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}
	return vector
}

// DeterministicEmbedding derives a stable pseudo-embedding from the
// text alone: the wrapping sum of all bytes seeds every element as
// ((hash + i) mod 1000) / 1000. Equal text always maps to an equal
// vector, which preserves idempotent inserts.
func DeterministicEmbedding(text string, dimensions int) []float32 {
	var hash uint64
	for _, b := range []byte(text) {
		hash += uint64(b)
	}

	vector := make([]float32, dimensions)
	for i := range vector {
		vector[i] = float32((hash+uint64(i))%1000) / 1000.0
	}
	return vector
}
