// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

const defaultHashingDimension = 1024

// Hashing is a stateless feature-hashing vectorizer. Query vectors are
// stable without fitting, so indexes built with it can be queried by any
// process configured with the same dimension.
type Hashing struct {
	dim int
}

// NewHashing returns a hashing provider with dim buckets (default 1024).
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = defaultHashingDimension
	}
	return &Hashing{dim: dim}
}

// Name returns the identifier of this provider.
func (h *Hashing) Name() string { return string(types.EmbeddingHashing) }

// Fit is a no-op.
func (h *Hashing) Fit(context.Context, []string) error { return nil }

// Embed hashes every text.
func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

// EmbedQuery hashes one query.
func (h *Hashing) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	return h.vector(text), nil
}

// vector uses the signed hashing trick: one hash picks the bucket and its
// top bit picks the sign, which keeps collisions unbiased.
func (h *Hashing) vector(text string) []float64 {
	vec := make([]float64, h.dim)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	normalize(vec)
	return vec
}

// MarshalState records the dimension so a reader rebuilds the same space.
func (h *Hashing) MarshalState() ([]byte, error) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(h.dim))
	return buf, nil
}

// UnmarshalState restores the dimension written by MarshalState.
func (h *Hashing) UnmarshalState(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("%w: hashing state has %d bytes", types.ErrValidation, len(data))
	}
	dim := int(binary.BigEndian.Uint32(data))
	if dim <= 0 {
		return fmt.Errorf("%w: hashing dimension %d", types.ErrValidation, dim)
	}
	h.dim = dim
	return nil
}
