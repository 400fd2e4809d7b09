// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/viva-examiner/internal/embedding"
	"github.com/pdiddy/viva-examiner/pkg/types"
)

// DefaultK is the number of results returned when k is not positive.
const DefaultK = 5

const (
	cacheTTL     = 30 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// ChunkMeta is the provenance of a retrieved chunk.
type ChunkMeta struct {
	ChunkID string `json:"chunk_id" yaml:"chunk_id"`
	PaperID string `json:"paper_id" yaml:"paper_id"`
	Section string `json:"section" yaml:"section"`
	Page    int    `json:"page" yaml:"page"`
	Index   int    `json:"index" yaml:"index"`
}

// Retrieved is one ranked retrieval result.
type Retrieved struct {
	Text     string    `json:"text" yaml:"text"`
	Score    float64   `json:"score" yaml:"score"`
	Metadata ChunkMeta `json:"metadata" yaml:"metadata"`
}

// loaded is a cached index with its restored encoder.
type loaded struct {
	idx     *index
	encoder embedding.Provider
}

// Retriever answers similarity queries against persisted indexes. Index
// files are immutable, so loaded indexes are cached by reference and
// concurrent loads of the same reference share one read.
type Retriever struct {
	cfg    types.EmbeddingConfig
	logger *zap.Logger
	cache  *cache.Cache
	group  singleflight.Group
}

// NewRetriever creates a Retriever. cfg supplies credentials for remote
// encoders; the encoder kind and its fitted state come from each index.
func NewRetriever(cfg types.EmbeddingConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		cfg:    cfg,
		logger: logger.Named("retriever"),
		cache:  cache.New(cacheTTL, cacheCleanup),
	}
}

// Query returns the k chunks of the index at ref most similar to text,
// by descending cosine similarity with ties broken by chunk order. k <= 0
// means DefaultK. An index with fewer than k chunks returns all of them.
func (r *Retriever) Query(ctx context.Context, ref, text string, k int) ([]Retrieved, error) {
	if k <= 0 {
		k = DefaultK
	}
	l, err := r.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	chunks := l.idx.kb.Chunks
	if len(chunks) == 0 {
		return []Retrieved{}, nil
	}

	q, err := l.encoder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", types.ErrEmbedding, err)
	}

	results := make([]Retrieved, len(chunks))
	for i, c := range chunks {
		results[i] = Retrieved{
			Text:  c.Text,
			Score: cosine(q, l.idx.vectors[i]),
			Metadata: ChunkMeta{
				ChunkID: c.ID,
				PaperID: l.idx.kb.PaperID,
				Section: c.Section,
				Page:    c.Page,
				Index:   c.Index,
			},
		}
	}
	// Chunks are stored in ordinal order; a stable sort keeps that order
	// among equal scores.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Invalidate drops a cached index.
func (r *Retriever) Invalidate(ref string) {
	r.cache.Delete(ref)
}

func (r *Retriever) load(ctx context.Context, ref string) (*loaded, error) {
	if v, ok := r.cache.Get(ref); ok {
		return v.(*loaded), nil
	}

	v, err, shared := r.group.Do(ref, func() (any, error) {
		idx, err := readIndex(ctx, ref)
		if err != nil {
			return nil, err
		}
		enc, err := embedding.Restore(idx.provider, idx.state, r.cfg, r.logger)
		if err != nil {
			return nil, err
		}
		l := &loaded{idx: idx, encoder: enc}
		r.cache.SetDefault(ref, l)
		r.logger.Debug("loaded index",
			zap.String("index", ref),
			zap.String("provider", idx.provider),
			zap.Int("chunks", len(idx.kb.Chunks)),
		)
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("shared index load", zap.String("index", ref))
	}
	return v.(*loaded), nil
}

// cosine returns the cosine similarity of a query and a stored vector.
// Mismatched lengths compare over the shared prefix; zero vectors score 0.
func cosine(q []float64, v []float32) float64 {
	n := len(q)
	if len(v) < n {
		n = len(v)
	}
	var dot, nq, nv float64
	for i := 0; i < n; i++ {
		x, y := q[i], float64(v[i])
		dot += x * y
		nq += x * x
		nv += y * y
	}
	if nq == 0 || nv == 0 {
		return 0
	}
	return dot / (math.Sqrt(nq) * math.Sqrt(nv))
}
