// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/viva-examiner/internal/embedding"
	"github.com/pdiddy/viva-examiner/pkg/types"
)

// --- test helpers ---

func tfidfFactory() (embedding.Provider, error) { return embedding.NewTFIDF(), nil }

func testBuilder(t *testing.T, factory embedding.Factory) (*Builder, string) {
	t.Helper()
	dir := t.TempDir()
	return NewBuilder(types.ChunkConfig{Size: 512, Overlap: 50}, factory, dir, nil), dir
}

func samplePaper() types.Document {
	return types.Document{
		Text: "Efficient Attention reduces cost. Softmax Attention is quadratic.",
		Metadata: map[string]string{
			"title": "Efficient Attention Mechanisms for Transformers",
		},
		Sections: []types.Section{
			{Heading: "Background", Content: "Softmax Attention computes weighted averages over all input positions.", Page: 1},
			{Heading: "Method", Content: "We define Efficient Attention as a linear approximation of softmax kernels.", Page: 2},
			{Heading: "Results", Content: "Our method achieves 89.2% accuracy on the GLUE benchmark with lower memory.", Page: 5},
		},
	}
}

// failingProvider fails at a configurable stage.
type failingProvider struct {
	failFit bool
}

func (f failingProvider) Name() string { return "failing" }

func (f failingProvider) Fit(context.Context, []string) error {
	if f.failFit {
		return errors.New("fit exploded")
	}
	return nil
}

func (f failingProvider) Embed(context.Context, []string) ([][]float64, error) {
	return nil, errors.New("service unavailable")
}

func (f failingProvider) EmbedQuery(context.Context, string) ([]float64, error) {
	return nil, errors.New("service unavailable")
}

// --- Build ---

func TestBuildTwoShortSections(t *testing.T) {
	b, dir := testBuilder(t, tfidfFactory)
	doc := types.Document{
		Text: "Intro text. Method text.",
		Sections: []types.Section{
			{Heading: "Intro", Content: "We study retrieval.", Page: 1},
			{Heading: "Method", Content: "We use cosine similarity.", Page: 2},
		},
	}

	kb, err := b.Build(context.Background(), doc, "paper-a")
	require.NoError(t, err)
	require.Len(t, kb.Chunks, 2)

	assert.Equal(t, "Intro", kb.Chunks[0].Section)
	assert.Equal(t, 1, kb.Chunks[0].Page)
	assert.Equal(t, 0, kb.Chunks[0].Index)
	assert.Equal(t, "Method", kb.Chunks[1].Section)
	assert.Equal(t, 2, kb.Chunks[1].Page)
	assert.Equal(t, 0, kb.Chunks[1].Index)
	assert.Equal(t, 1, kb.Chunks[1].Ordinal)
	assert.NotEqual(t, kb.Chunks[0].ID, kb.Chunks[1].ID)

	assert.FileExists(t, kb.IndexRef)
	assert.Equal(t, filepath.Join(dir, "paper-a"), filepath.Dir(kb.IndexRef))
}

func TestBuildWithoutSectionsUsesMainContent(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), types.Document{Text: "A single paragraph of text."}, "p")
	require.NoError(t, err)
	require.Len(t, kb.Chunks, 1)
	assert.Equal(t, types.MainContentSection, kb.Chunks[0].Section)
	assert.Equal(t, 0, kb.Chunks[0].Page)
}

func TestBuildIndexRestartsPerSection(t *testing.T) {
	b := NewBuilder(types.ChunkConfig{Size: 40, Overlap: 0}, tfidfFactory, t.TempDir(), nil)
	long := "First sentence here. Second sentence here. Third sentence here."
	doc := types.Document{Sections: []types.Section{
		{Heading: "A", Content: long},
		{Heading: "B", Content: long},
	}}
	kb, err := b.Build(context.Background(), doc, "p")
	require.NoError(t, err)

	next := map[string]int{}
	for i, c := range kb.Chunks {
		assert.Equal(t, next[c.Section], c.Index)
		assert.Equal(t, i, c.Ordinal)
		assert.LessOrEqual(t, len([]rune(c.Text)), 40)
		next[c.Section]++
	}
	assert.Greater(t, next["A"], 1)
	assert.Equal(t, next["A"], next["B"])
}

func TestBuildEmptyDocument(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), types.Document{}, "empty")
	require.NoError(t, err)
	assert.Empty(t, kb.Chunks)

	r := NewRetriever(types.EmbeddingConfig{}, nil)
	res, err := r.Query(context.Background(), kb.IndexRef, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBuildEmbeddingFailure(t *testing.T) {
	tests := []struct {
		name     string
		provider failingProvider
	}{
		{"fit fails", failingProvider{failFit: true}},
		{"embed fails", failingProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, dir := testBuilder(t, func() (embedding.Provider, error) { return tt.provider, nil })
			_, err := b.Build(context.Background(), samplePaper(), "p")
			assert.ErrorIs(t, err, types.ErrEmbedding)

			refs, err := Versions(dir, "p")
			require.NoError(t, err)
			assert.Empty(t, refs)
		})
	}
}

func TestBuildRequiresPaperID(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	_, err := b.Build(context.Background(), samplePaper(), " ")
	assert.ErrorIs(t, err, types.ErrValidation)
}

// --- versions ---

func TestEachBuildIsANewVersion(t *testing.T) {
	b, dir := testBuilder(t, tfidfFactory)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	first, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)
	second, err := b.Build(context.Background(), types.Document{Text: "Revised text."}, "p")
	require.NoError(t, err)
	assert.NotEqual(t, first.IndexRef, second.IndexRef)

	latest, err := Latest(dir, "p")
	require.NoError(t, err)
	assert.Equal(t, second.IndexRef, latest)

	// The older version stays readable.
	old, err := Load(context.Background(), first.IndexRef)
	require.NoError(t, err)
	assert.Len(t, old.Chunks, 3)
}

func TestLatestMissingPaper(t *testing.T) {
	_, err := Latest(t.TempDir(), "nope")
	assert.ErrorIs(t, err, types.ErrIndexNotFound)
}

func TestVersionKeyOrdersCollisions(t *testing.T) {
	assert.Less(t, versionKey("x/20260301T120000.000000000Z.db"), versionKey("x/20260301T120000.000000000Z-1.db"))
	assert.Less(t, versionKey("x/20260301T120000.000000000Z-2.db"), versionKey("x/20260301T120000.000000000Z-10.db"))
}

// --- Load ---

func TestLoadRoundTrip(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)

	got, err := Load(context.Background(), kb.IndexRef)
	require.NoError(t, err)
	assert.Equal(t, kb.PaperID, got.PaperID)
	assert.Equal(t, kb.Chunks, got.Chunks)
	assert.Equal(t, kb.Concepts, got.Concepts)
	assert.Equal(t, kb.IndexRef, got.IndexRef)
	assert.Equal(t, samplePaper().Text, got.Text)
}

func TestLoadFullTextFallsBackToSections(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	doc := samplePaper()
	doc.Text = ""
	kb, err := b.Build(context.Background(), doc, "p")
	require.NoError(t, err)

	got, err := Load(context.Background(), kb.IndexRef)
	require.NoError(t, err)
	assert.Contains(t, got.Text, "linear approximation of softmax kernels")
	assert.Contains(t, got.Text, "GLUE benchmark")
}

func TestPathsWithURICharacters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx?mode=rw#frag%41")
	b := NewBuilder(types.ChunkConfig{Size: 512, Overlap: 50}, tfidfFactory, dir, nil)
	kb, err := b.Build(context.Background(), samplePaper(), "what?is#this%20")
	require.NoError(t, err)
	assert.NotContains(t, filepath.Base(filepath.Dir(kb.IndexRef)), "?")
	assert.NotContains(t, filepath.Base(filepath.Dir(kb.IndexRef)), "#")

	got, err := Load(context.Background(), kb.IndexRef)
	require.NoError(t, err)
	assert.Equal(t, "what?is#this%20", got.PaperID)
	assert.Equal(t, kb.Chunks, got.Chunks)

	res, err := NewRetriever(types.EmbeddingConfig{}, nil).Query(context.Background(), kb.IndexRef, "GLUE benchmark", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Results", res[0].Metadata.Section)
}

func TestSQLiteDSNEscapesPath(t *testing.T) {
	assert.Equal(t, "file:/tmp/a%3Fb%23c%25d/v.db?mode=ro", sqliteDSN("/tmp/a?b#c%d/v.db", "ro"))
	assert.Equal(t, "file:idx/p/v.db.tmp?mode=rwc", sqliteDSN("idx/p/v.db.tmp", "rwc"))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, types.ErrIndexNotFound)
}

// --- Query ---

func TestQueryRanksRelevantChunkFirst(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)

	r := NewRetriever(types.EmbeddingConfig{}, nil)
	res, err := r.Query(context.Background(), kb.IndexRef, "GLUE benchmark accuracy", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Results", res[0].Metadata.Section)
	assert.Equal(t, 5, res[0].Metadata.Page)
	assert.Equal(t, "p", res[0].Metadata.PaperID)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestQueryDefaultsAndShortIndex(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)

	r := NewRetriever(types.EmbeddingConfig{}, nil)
	res, err := r.Query(context.Background(), kb.IndexRef, "attention", 0)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestQueryTiesKeepChunkOrder(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)

	r := NewRetriever(types.EmbeddingConfig{}, nil)
	// No query term is in the vocabulary, so every score is zero.
	res, err := r.Query(context.Background(), kb.IndexRef, "zzzz qqqq", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for i, want := range kb.Chunks {
		assert.Equal(t, want.ID, res[i].Metadata.ChunkID)
		assert.Zero(t, res[i].Score)
	}
}

func TestQueryFromSeparateRetrieverMatches(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)

	a, err := NewRetriever(types.EmbeddingConfig{}, nil).Query(context.Background(), kb.IndexRef, "linear approximation", 3)
	require.NoError(t, err)
	c, err := NewRetriever(types.EmbeddingConfig{}, nil).Query(context.Background(), kb.IndexRef, "linear approximation", 3)
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.Equal(t, "Method", a[0].Metadata.Section)
}

func TestQueryHashingProvider(t *testing.T) {
	b, _ := testBuilder(t, func() (embedding.Provider, error) { return embedding.NewHashing(512), nil })
	kb, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)

	res, err := NewRetriever(types.EmbeddingConfig{}, nil).Query(context.Background(), kb.IndexRef, "softmax weighted averages", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Background", res[0].Metadata.Section)
}

func TestQueryMissingIndex(t *testing.T) {
	r := NewRetriever(types.EmbeddingConfig{}, nil)
	_, err := r.Query(context.Background(), filepath.Join(t.TempDir(), "gone.db"), "q", 3)
	assert.ErrorIs(t, err, types.ErrIndexNotFound)

	_, err = r.Query(context.Background(), "", "q", 3)
	assert.ErrorIs(t, err, types.ErrIndexNotFound)
}

func TestQueryConcurrentLoads(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)

	r := NewRetriever(types.EmbeddingConfig{}, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Query(context.Background(), kb.IndexRef, "attention", 2)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	_, cached := r.cache.Get(kb.IndexRef)
	assert.True(t, cached)

	r.Invalidate(kb.IndexRef)
	_, cached = r.cache.Get(kb.IndexRef)
	assert.False(t, cached)
}

// --- concepts ---

func TestExtractConcepts(t *testing.T) {
	text := "We propose Sparse Transformers for long inputs. The Encoder uses pooling. " +
		"Our Encoder is small. Encoder design matters. An Encoder again."
	concepts := ExtractConcepts(text, 20)

	terms := make([]string, len(concepts))
	for i, c := range concepts {
		terms[i] = c.Term
	}
	assert.Equal(t, []string{"Sparse Transformers", "Transformers", "Encoder"}, terms)

	enc := concepts[2]
	assert.Equal(t, "Key concept from the paper: Encoder", enc.Definition)
	assert.Len(t, enc.Context, 3)
	assert.Equal(t, []string{"The Encoder uses pooling", "Our Encoder is small", "Encoder design matters"}, enc.Context)
}

func TestExtractConceptsLimit(t *testing.T) {
	text := "Alpha beta. Gamma beta. Delta beta. Epsilon beta."
	assert.Len(t, ExtractConcepts(text, 2), 2)
	assert.Empty(t, ExtractConcepts("all lower case words here", 5))
}

// --- export ---

func TestExport(t *testing.T) {
	b, _ := testBuilder(t, tfidfFactory)
	kb, err := b.Build(context.Background(), samplePaper(), "p")
	require.NoError(t, err)

	out := t.TempDir()
	yamlPath := filepath.Join(out, "kb.yaml")
	jsonPath := filepath.Join(out, "nested", "kb.json")
	require.NoError(t, ExportYAML(context.Background(), kb.IndexRef, yamlPath))
	require.NoError(t, ExportJSON(context.Background(), kb.IndexRef, jsonPath))

	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	var y Export
	require.NoError(t, yaml.Unmarshal(data, &y))
	assert.Equal(t, "p", y.PaperID)
	assert.Equal(t, "tfidf", y.Provider)
	assert.Len(t, y.Chunks, 3)

	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	var j Export
	require.NoError(t, json.Unmarshal(data, &j))
	assert.Equal(t, kb.Concepts, j.Concepts)

	assert.ErrorIs(t, ExportJSON(context.Background(), "missing.db", jsonPath), types.ErrIndexNotFound)
}
