// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// Export is the portable form of one index version.
type Export struct {
	PaperID  string          `json:"paper_id" yaml:"paper_id"`
	IndexRef string          `json:"index_ref" yaml:"index_ref"`
	Provider string          `json:"provider" yaml:"provider"`
	BuiltAt  time.Time       `json:"built_at" yaml:"built_at"`
	Chunks   []types.Chunk   `json:"chunks" yaml:"chunks"`
	Concepts []types.Concept `json:"concepts" yaml:"concepts"`
}

// ExportYAML writes the chunks and concepts of the index at ref to path.
func ExportYAML(ctx context.Context, ref, path string) error {
	e, err := exportIndex(ctx, ref)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return writeFile(path, data)
}

// ExportJSON writes the chunks and concepts of the index at ref to path.
func ExportJSON(ctx context.Context, ref, path string) error {
	e, err := exportIndex(ctx, ref)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return writeFile(path, data)
}

func exportIndex(ctx context.Context, ref string) (*Export, error) {
	idx, err := readIndex(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("reading index for export: %w", err)
	}
	return &Export{
		PaperID:  idx.kb.PaperID,
		IndexRef: ref,
		Provider: idx.provider,
		BuiltAt:  idx.builtAt,
		Chunks:   idx.kb.Chunks,
		Concepts: idx.kb.Concepts,
	}, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
