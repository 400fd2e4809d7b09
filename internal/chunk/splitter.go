// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunk splits document text into bounded-length, overlapping chunks.
// Splitting prefers paragraph boundaries, then lines, then sentences, then
// words, and falls back to hard character cuts.
package chunk

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultSize    = 512
	DefaultOverlap = 50
)

// DefaultSeparators lists split points from coarsest to finest. The empty
// separator cuts between characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter is a recursive length-bounded text splitter. Lengths are
// measured in characters (runes).
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter returns a Splitter targeting size characters with the given
// overlap. Non-positive size uses DefaultSize; overlap is clamped to
// [0, size).
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Splitter{size: size, overlap: overlap, separators: DefaultSeparators}
}

// Split breaks text into chunks of at most the target size. Chunks are
// trimmed of surrounding whitespace; empty chunks are dropped.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var (
		chunks []string
		good   []string
	)
	for _, piece := range splitKeep(text, separator) {
		if length(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				chunks = append(chunks, t)
			}
			continue
		}
		chunks = append(chunks, s.split(piece, finer)...)
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge packs pieces into chunks no longer than the target size, carrying
// up to overlap characters of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := length(p)
		if total+n > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				chunks = append(chunks, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}

// splitKeep splits text on sep, keeping the separator at the end of each
// piece so sentence punctuation and spacing survive the merge. An empty
// separator splits into single characters.
func splitKeep(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
