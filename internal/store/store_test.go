package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/models"
)

type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DeterministicEmbedding(text, f.dims), nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default().Database
	cfg.DataDir = t.TempDir()
	cfg.Embedding.Dimensions = 64

	s, err := OpenWithEmbedder(cfg, &fakeEmbedder{dims: 64})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(content, rel, repoURL string) *models.Document {
	return models.NewDocument("/corpus/"+rel, rel, repoURL, content, int64(len(content)),
		time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
}

func TestInsertIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDocument("# Heist Report\n\nFunds drained.", "heist.md", "https://example.com/intel.git")
	addr := models.NewCryptoAddress("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", "drained to address")

	inserted, err := s.InsertDocument(ctx, doc, []*models.CryptoAddress{addr}, nil, nil)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same content again is a no-op everywhere.
	again := testDocument("# Heist Report\n\nFunds drained.", "copy/heist.md", "https://example.com/intel.git")
	inserted, err = s.InsertDocument(ctx, again, []*models.CryptoAddress{addr}, nil, nil)
	require.NoError(t, err)
	assert.False(t, inserted)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["documents"])
	assert.Equal(t, int64(1), counts["crypto_addresses"])
	assert.Equal(t, 1, s.VectorCount())
}

func TestDocumentHashes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDocument("content one", "one.md", "")
	_, err := s.InsertDocument(ctx, doc, nil, nil, nil)
	require.NoError(t, err)

	hashes, err := s.DocumentHashes(ctx)
	require.NoError(t, err)
	assert.Contains(t, hashes, models.HashContent("content one"))
	assert.NotContains(t, hashes, models.HashContent("content two"))
}

func TestSemanticSearchScoresExactMatchHighest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	docA := testDocument("lazarus group drained the exchange hot wallet", "a.md", "https://example.com/intel.git")
	docB := testDocument("quarterly budget meeting notes", "b.md", "https://example.com/intel.git")
	for _, d := range []*models.Document{docA, docB} {
		_, err := s.InsertDocument(ctx, d, nil, nil, nil)
		require.NoError(t, err)
	}

	results, err := s.SearchSemantic(ctx, "lazarus group drained the exchange hot wallet", 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Deterministic embedding of an identical query is the identical
	// vector, so the exact document comes back with score 1.
	assert.Equal(t, docA.ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "a.md", results[0].RelativePath)
}

func TestSemanticSearchRepositoryFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	docA := testDocument("mixer deposits from the bridge exploit", "a.md", "https://example.com/alpha.git")
	docB := testDocument("mixer deposits from the bridge exploit, annotated", "b.md", "https://example.com/beta.git")
	for _, d := range []*models.Document{docA, docB} {
		_, err := s.InsertDocument(ctx, d, nil, nil, nil)
		require.NoError(t, err)
	}

	results, err := s.SearchSemantic(ctx, "bridge exploit", 10, "https://example.com/beta.git")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, docB.ID, results[0].ID)
}

func TestKeywordSearch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDocument("The attacker used spear phishing against the treasury team.", "phish.md", "https://example.com/intel.git")
	_, err := s.InsertDocument(ctx, doc, nil, nil, nil)
	require.NoError(t, err)

	results, err := s.SearchKeyword("phishing treasury", 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, doc.ID, results[0].ID)
	assert.Equal(t, "phish.md", results[0].RelativePath)

	// Filter excludes other repositories.
	none, err := s.SearchKeyword("phishing", 5, "https://example.com/other.git")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteRepository(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	keepURL := "https://example.com/keep.git"
	dropURL := "https://example.com/drop.git"

	keep := testDocument("keep this document", "keep.md", keepURL)
	drop := testDocument("drop this document", "drop.md", dropURL)
	dropIoc := models.NewIoc("203.0.113.9", models.IocIP, "c2 server")

	_, err := s.InsertDocument(ctx, keep, nil, nil, nil)
	require.NoError(t, err)
	_, err = s.InsertDocument(ctx, drop, nil, nil, []*models.Ioc{dropIoc})
	require.NoError(t, err)

	removed, err := s.DeleteRepository(ctx, dropURL)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["documents"])
	assert.Equal(t, int64(0), counts["iocs"])
	assert.Equal(t, 1, s.VectorCount())

	results, err := s.SearchKeyword("document", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep.ID, results[0].ID)
}

func TestVerifySchemaAndReset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.VerifySchema(ctx))

	doc := testDocument("to be wiped", "wipe.md", "")
	_, err := s.InsertDocument(ctx, doc, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts["documents"])
	assert.Equal(t, 0, s.VectorCount())
	require.NoError(t, s.VerifySchema(ctx))
}

func TestDeterministicEmbedding(t *testing.T) {
	t.Parallel()

	a := DeterministicEmbedding("abc", 8)
	b := DeterministicEmbedding("abc", 8)
	c := DeterministicEmbedding("abd", 8)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	require.Len(t, a, 8)

	// hash("abc") = 97+98+99 = 294; element i = ((294+i) % 1000) / 1000.
	assert.InDelta(t, 0.294, float64(a[0]), 1e-6)
	assert.InDelta(t, 0.295, float64(a[1]), 1e-6)

	for _, v := range a {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}
}

func TestAPIEmbedderFallbackAndCache(t *testing.T) {
	t.Parallel()

	e, err := NewAPIEmbedder(config.EmbeddingConfig{Dimensions: 16})
	require.NoError(t, err)

	first, err := e.Embed(context.Background(), "some report text")
	require.NoError(t, err)
	assert.Equal(t, DeterministicEmbedding("some report text", 16), first)

	second, err := e.Embed(context.Background(), "some report text")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
