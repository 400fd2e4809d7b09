// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Chunk is a bounded-length span of document text with provenance.
// Chunks are immutable once created and owned by their KnowledgeBase.
type Chunk struct {
	// ID is a unique identifier for the chunk.
	ID string `json:"id" yaml:"id"`

	// Text is the chunk content.
	Text string `json:"text" yaml:"text"`

	// Section is the heading of the section the chunk came from.
	Section string `json:"section" yaml:"section"`

	// Page is the page number of the source section.
	Page int `json:"page" yaml:"page"`

	// Index is the ordinal of the chunk within its section, starting at 0.
	Index int `json:"index" yaml:"index"`

	// Ordinal is the position of the chunk in the knowledge base. Retrieval
	// uses it to break similarity ties.
	Ordinal int `json:"ordinal" yaml:"ordinal"`
}

// Concept is a candidate technical term with supporting context. Concepts
// are advisory metadata used only for question-specificity checks.
type Concept struct {
	Term       string   `json:"term" yaml:"term"`
	Definition string   `json:"definition" yaml:"definition"`
	Context    []string `json:"context,omitempty" yaml:"context,omitempty"`
}

// KnowledgeBase is the retrievable representation of one paper.
type KnowledgeBase struct {
	// PaperID is the join key between a knowledge base and its sessions.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	Chunks   []Chunk   `json:"chunks" yaml:"chunks"`
	Concepts []Concept `json:"concepts" yaml:"concepts"`

	// IndexRef is the path of the persisted retrieval index. A separate
	// process can reload the index from it.
	IndexRef string `json:"index_ref" yaml:"index_ref"`

	// Text is the full document text the index was built from.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
}

// ConceptTerms returns up to n concept terms in extraction order.
// n <= 0 returns all terms.
func (kb *KnowledgeBase) ConceptTerms(n int) []string {
	concepts := kb.Concepts
	if n > 0 && len(concepts) > n {
		concepts = concepts[:n]
	}
	terms := make([]string, len(concepts))
	for i, c := range concepts {
		terms[i] = c.Term
	}
	return terms
}
