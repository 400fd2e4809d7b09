// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package document loads a parsed paper into a types.Document.
//
// Markdown is split on "## " and "### " headings; "<!-- page N -->"
// comments set the page of the sections that follow, and the first "# "
// heading becomes the title metadata. YAML and JSON files are decoded
// directly into the Document shape.
package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// Load reads the document at path. The format is chosen by extension:
// .md and .markdown parse as Markdown, .yaml and .yml as YAML, .json as
// JSON, anything else as plain text. Failures wrap types.ErrParsing.
func Load(path string) (types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, fmt.Errorf("%w: reading %s: %v", types.ErrParsing, path, err)
	}

	var doc types.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		doc = ParseMarkdown(string(data))
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return types.Document{}, fmt.Errorf("%w: decoding %s: %v", types.ErrParsing, path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return types.Document{}, fmt.Errorf("%w: decoding %s: %v", types.ErrParsing, path, err)
		}
	default:
		doc = types.Document{Text: string(data)}
	}

	if doc.Text == "" && len(doc.Sections) > 0 {
		doc.Text = joinSections(doc.Sections)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	if _, ok := doc.Metadata["source"]; !ok {
		doc.Metadata["source"] = filepath.Base(path)
	}
	return doc, nil
}

// ParseMarkdown splits content into sections at level-2 and level-3
// headings. Text before the first such heading is kept as an untitled
// section when it is not blank.
func ParseMarkdown(content string) types.Document {
	doc := types.Document{Text: content, Metadata: map[string]string{}}

	currentHeading := ""
	currentPage := 0
	startPage := 0
	var bodyLines []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(bodyLines, "\n"))
		if currentHeading != "" || body != "" {
			doc.Sections = append(doc.Sections, types.Section{
				Heading: currentHeading,
				Content: body,
				Page:    startPage,
			})
		}
		bodyLines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if page, ok := parsePageMarker(trimmed); ok {
			currentPage = page
			if strings.TrimSpace(strings.Join(bodyLines, "")) == "" {
				startPage = page
			}
			continue
		}

		if title, ok := parseTitle(trimmed); ok {
			if _, seen := doc.Metadata["title"]; !seen {
				doc.Metadata["title"] = title
				continue
			}
		}

		if isHeading(trimmed) {
			flush()
			currentHeading = stripHeadingPrefix(trimmed)
			startPage = currentPage
			continue
		}

		bodyLines = append(bodyLines, line)
	}
	flush()

	// A lone untitled section is the whole document.
	if len(doc.Sections) == 1 && doc.Sections[0].Heading == "" {
		doc.Sections = nil
	}
	return doc
}

// isHeading returns true if the line starts with ## or ###.
func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

// parseTitle reports the text of a level-1 heading.
func parseTitle(line string) (string, bool) {
	if !strings.HasPrefix(line, "# ") {
		return "", false
	}
	return strings.TrimSpace(line[2:]), true
}

// stripHeadingPrefix removes the leading # characters and whitespace.
func stripHeadingPrefix(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

// parsePageMarker extracts the page number from an HTML comment like <!-- page 3 -->.
func parsePageMarker(line string) (int, bool) {
	if !strings.HasPrefix(line, "<!-- page ") || !strings.HasSuffix(line, " -->") {
		return 0, false
	}
	inner := strings.TrimPrefix(line, "<!-- page ")
	inner = strings.TrimSuffix(inner, " -->")
	var page int
	if _, err := fmt.Sscanf(inner, "%d", &page); err != nil {
		return 0, false
	}
	return page, true
}

func joinSections(sections []types.Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Heading != "" {
			parts = append(parts, s.Heading)
		}
		if s.Content != "" {
			parts = append(parts, s.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
