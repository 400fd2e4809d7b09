// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// TFIDF is a corpus-fitted TF-IDF vectorizer. Its vocabulary and IDF
// weights are part of the index, so it implements Stateful.
type TFIDF struct {
	vocabulary map[string]int
	terms      []string
	idf        []float64
	docs       int
	fitted     bool
}

// tfidfState is the persisted form of a fitted TFIDF.
type tfidfState struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`
	Docs  int       `json:"docs"`
}

// NewTFIDF creates an unfitted TF-IDF provider.
func NewTFIDF() *TFIDF {
	return &TFIDF{vocabulary: map[string]int{}}
}

// Name returns the identifier of this provider.
func (e *TFIDF) Name() string { return string(types.EmbeddingTFIDF) }

// Dimension returns the vocabulary size.
func (e *TFIDF) Dimension() int { return len(e.terms) }

// Fitted reports whether Fit or UnmarshalState has run.
func (e *TFIDF) Fitted() bool { return e.fitted }

// Fit builds the vocabulary and smoothed IDF weights from corpus. An empty
// corpus yields an empty vocabulary; every vector is then the zero vector.
func (e *TFIDF) Fit(ctx context.Context, corpus []string) error {
	df := make(map[string]int)
	for _, text := range corpus {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen := make(map[string]struct{})
		for _, tok := range tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.load(terms, idf, len(corpus))
	return nil
}

func (e *TFIDF) load(terms []string, idf []float64, docs int) {
	e.terms = terms
	e.idf = idf
	e.docs = docs
	e.vocabulary = make(map[string]int, len(terms))
	for i, term := range terms {
		e.vocabulary[term] = i
	}
	e.fitted = true
}

// Embed computes L2-normalized TF-IDF vectors.
func (e *TFIDF) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if !e.fitted {
		return nil, types.ErrNotFitted
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

// EmbedQuery computes the vector for one query. It fails with
// types.ErrNotFitted before Fit or UnmarshalState.
func (e *TFIDF) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	if !e.fitted {
		return nil, types.ErrNotFitted
	}
	return e.vector(text), nil
}

func (e *TFIDF) vector(text string) []float64 {
	vec := make([]float64, len(e.terms))
	tf := make(map[int]int)
	total := 0
	for _, tok := range tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * e.idf[idx]
	}
	normalize(vec)
	return vec
}

// MarshalState serializes the fitted vocabulary and IDF weights.
func (e *TFIDF) MarshalState() ([]byte, error) {
	if !e.fitted {
		return nil, types.ErrNotFitted
	}
	return json.Marshal(tfidfState{Terms: e.terms, IDF: e.idf, Docs: e.docs})
}

// UnmarshalState restores a fitted encoder written by MarshalState.
func (e *TFIDF) UnmarshalState(data []byte) error {
	var st tfidfState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decoding tfidf state: %w", err)
	}
	if len(st.Terms) != len(st.IDF) {
		return fmt.Errorf("tfidf state has %d terms but %d weights", len(st.Terms), len(st.IDF))
	}
	e.load(st.Terms, st.IDF, st.Docs)
	return nil
}
