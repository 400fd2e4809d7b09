// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the viva-examiner engine.
// Implements: the data model of the interview orchestration engine
// (documents, knowledge bases, questions, evaluations, sessions) and the
// error taxonomy shared by every stage.
package types

// MainContentSection is the section label used when a document carries no
// labeled sections and is chunked as a whole.
const MainContentSection = "Main Content"

// Section is one labeled span of a parsed document.
type Section struct {
	// Heading is the section title as it appears in the paper.
	Heading string `json:"heading" yaml:"heading"`

	// Content is the section body text.
	Content string `json:"content" yaml:"content"`

	// Page is the page on which the section starts (0 if unknown).
	Page int `json:"page" yaml:"page"`
}

// Document is the output of the upstream parsing stage: full text,
// key-value metadata, and an ordered list of sections.
type Document struct {
	Text     string            `json:"text" yaml:"text"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Sections []Section         `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// Title returns the "title" metadata value, or "" when absent.
func (d Document) Title() string {
	return d.Metadata["title"]
}
