// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// DefaultConceptCount is the number of concepts kept per paper.
const DefaultConceptCount = 20

const (
	maxConceptContext = 3
	termTrim          = ".,;:()[]{}"
)

// ExtractConcepts picks candidate technical terms from text with a
// capitalization heuristic: a capitalized word longer than three
// characters, joined with the next word when that word is also
// capitalized. Terms keep first-seen order; at most topN are returned.
// Each concept carries up to three sentences containing the term verbatim.
func ExtractConcepts(text string, topN int) []types.Concept {
	if topN <= 0 {
		topN = DefaultConceptCount
	}

	words := strings.Fields(text)
	seen := make(map[string]struct{})
	var terms []string
	for i, w := range words {
		if utf8.RuneCountInString(w) <= 3 || !startsUpper(w) {
			continue
		}
		term := w
		if i+1 < len(words) && startsUpper(words[i+1]) {
			term = w + " " + words[i+1]
		}
		term = strings.Trim(term, termTrim)
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
		if len(terms) == topN {
			break
		}
	}

	sentences := strings.Split(text, ".")
	concepts := make([]types.Concept, 0, len(terms))
	for _, term := range terms {
		var ctx []string
		for _, s := range sentences {
			if strings.Contains(s, term) {
				ctx = append(ctx, strings.TrimSpace(s))
				if len(ctx) == maxConceptContext {
					break
				}
			}
		}
		concepts = append(concepts, types.Concept{
			Term:       term,
			Definition: "Key concept from the paper: " + term,
			Context:    ctx,
		})
	}
	return concepts
}

func startsUpper(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}
