// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/internal/chunk"
	"github.com/pdiddy/viva-examiner/internal/embedding"
	"github.com/pdiddy/viva-examiner/pkg/types"
)

// Builder turns a parsed document into a persisted KnowledgeBase.
type Builder struct {
	splitter *chunk.Splitter
	factory  embedding.Factory
	indexDir string
	logger   *zap.Logger
	now      func() time.Time
}

// NewBuilder creates a Builder writing indexes under indexDir.
func NewBuilder(cfg types.ChunkConfig, factory embedding.Factory, indexDir string, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		splitter: chunk.NewSplitter(cfg.Size, cfg.Overlap),
		factory:  factory,
		indexDir: indexDir,
		logger:   logger.Named("knowledge"),
		now:      time.Now,
	}
}

// Build chunks doc, embeds every chunk, extracts concepts, and writes a new
// index version. Sections are chunked independently; a document without
// sections is chunked as a single "Main Content" section on page 0.
// Embedding failures are wrapped in types.ErrEmbedding and nothing is
// written. A document with no text yields a valid empty index.
func (b *Builder) Build(ctx context.Context, doc types.Document, paperID string) (*types.KnowledgeBase, error) {
	if strings.TrimSpace(paperID) == "" {
		return nil, fmt.Errorf("%w: paper id is required", types.ErrValidation)
	}

	chunks := b.chunk(doc)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	provider, err := b.factory()
	if err != nil {
		return nil, fmt.Errorf("%w: creating provider: %v", types.ErrEmbedding, err)
	}
	if err := provider.Fit(ctx, texts); err != nil {
		return nil, fmt.Errorf("%w: fitting %s: %v", types.ErrEmbedding, provider.Name(), err)
	}

	var vectors [][]float32
	if len(texts) > 0 {
		raw, err := provider.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding chunks: %v", types.ErrEmbedding, err)
		}
		if len(raw) != len(texts) {
			return nil, fmt.Errorf("%w: %d vectors for %d chunks", types.ErrEmbedding, len(raw), len(texts))
		}
		vectors = make([][]float32, len(raw))
		for i, v := range raw {
			vectors[i] = toFloat32(v)
		}
	}

	var state []byte
	if st, ok := provider.(embedding.Stateful); ok {
		if state, err = st.MarshalState(); err != nil {
			return nil, fmt.Errorf("%w: saving %s state: %v", types.ErrEmbedding, provider.Name(), err)
		}
	}

	text := fullText(doc)
	kb := &types.KnowledgeBase{
		PaperID:  paperID,
		Chunks:   chunks,
		Concepts: ExtractConcepts(text, DefaultConceptCount),
		Text:     text,
	}
	ref, err := writeIndex(ctx, b.indexDir, &index{
		kb:       kb,
		vectors:  vectors,
		provider: provider.Name(),
		state:    state,
		builtAt:  b.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("writing index for %s: %w", paperID, err)
	}
	kb.IndexRef = ref

	b.logger.Info("built knowledge base",
		zap.String("paper_id", paperID),
		zap.Int("chunks", len(chunks)),
		zap.Int("concepts", len(kb.Concepts)),
		zap.String("provider", provider.Name()),
		zap.String("index", ref),
	)
	return kb, nil
}

func (b *Builder) chunk(doc types.Document) []types.Chunk {
	chunks := []types.Chunk{}
	add := func(text, section string, page int) {
		for i, piece := range b.splitter.Split(text) {
			chunks = append(chunks, types.Chunk{
				ID:      uuid.NewString(),
				Text:    piece,
				Section: section,
				Page:    page,
				Index:   i,
				Ordinal: len(chunks),
			})
		}
	}

	if len(doc.Sections) == 0 {
		add(doc.Text, types.MainContentSection, 0)
		return chunks
	}
	for _, s := range doc.Sections {
		add(s.Content, s.Heading, s.Page)
	}
	return chunks
}

// fullText is the text concepts are mined from: the document text, or the
// concatenated sections when the parser left it empty.
func fullText(doc types.Document) string {
	if strings.TrimSpace(doc.Text) != "" || len(doc.Sections) == 0 {
		return doc.Text
	}
	parts := make([]string, len(doc.Sections))
	for i, s := range doc.Sections {
		parts[i] = s.Content
	}
	return strings.Join(parts, "\n\n")
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
