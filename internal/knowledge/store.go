// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge builds, persists, and queries the retrieval index of a
// paper.
//
// Each build writes a new immutable SQLite file at
// <index_dir>/<paper_id>/<version>.db holding the chunks, their vectors,
// the extracted concepts, and the fitted encoder. The file path is the
// KnowledgeBase's IndexRef; readers resolve it without access to the
// process that built it.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

const (
	indexExt     = ".db"
	tmpExt       = ".tmp"
	versionStamp = "20060102T150405.000000000Z"
)

// Meta keys stored in the index.
const (
	metaPaperID  = "paper_id"
	metaProvider = "provider"
	metaState    = "encoder_state"
	metaBuiltAt  = "built_at"
	metaText     = "full_text"
)

// index is a fully loaded retrieval index.
type index struct {
	kb       *types.KnowledgeBase
	vectors  [][]float32
	provider string
	state    []byte
	builtAt  time.Time
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value BLOB
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		ordinal INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		section TEXT NOT NULL,
		page INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		vector BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_section ON chunks(section)`,
	`CREATE TABLE IF NOT EXISTS concepts (
		ordinal INTEGER PRIMARY KEY,
		term TEXT NOT NULL,
		definition TEXT,
		context TEXT
	)`,
}

// paperDir returns the directory holding every version of a paper's index.
func paperDir(indexDir, paperID string) string {
	return filepath.Join(indexDir, sanitize(paperID))
}

// sanitize keeps a paper id usable as a single path element.
func sanitize(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_", "?", "_", "#", "_", "%", "_")
	return r.Replace(id)
}

// sqliteDSN builds a SQLite URI opening path in mode ("ro" or "rwc").
// Each element is percent-escaped so '?', '#' and '%' in directory names
// stay part of the path.
func sqliteDSN(path, mode string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "file:" + strings.Join(parts, "/") + "?mode=" + mode
}

// writeIndex persists idx as a new version under indexDir and returns its
// path. The file is written under a temporary name and renamed into place
// so readers never observe a partial index.
func writeIndex(ctx context.Context, indexDir string, idx *index) (string, error) {
	dir := paperDir(indexDir, idx.kb.PaperID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating index directory: %w", err)
	}

	version := idx.builtAt.UTC().Format(versionStamp)
	final := filepath.Join(dir, version+indexExt)
	for n := 1; fileExists(final); n++ {
		final = filepath.Join(dir, fmt.Sprintf("%s-%d%s", version, n, indexExt))
	}
	tmp := final + tmpExt
	os.Remove(tmp)

	if err := writeDB(ctx, tmp, idx); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publishing index: %w", err)
	}
	return final, nil
}

func writeDB(ctx context.Context, path string, idx *index) error {
	db, err := sql.Open("sqlite3", sqliteDSN(path, "rwc"))
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer db.Close()

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	meta := map[string][]byte{
		metaPaperID:  []byte(idx.kb.PaperID),
		metaProvider: []byte(idx.provider),
		metaState:    idx.state,
		metaBuiltAt:  []byte(idx.builtAt.UTC().Format(time.RFC3339Nano)),
		metaText:     []byte(idx.kb.Text),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("writing meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (ordinal, id, text, section, page, idx, vector) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range idx.kb.Chunks {
		var vec []byte
		if i < len(idx.vectors) {
			vec = encodeVector(idx.vectors[i])
		}
		if _, err := stmt.ExecContext(ctx, c.Ordinal, c.ID, c.Text, c.Section, c.Page, c.Index, vec); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	for i, c := range idx.kb.Concepts {
		ctxJSON, _ := json.Marshal(c.Context)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO concepts (ordinal, term, definition, context) VALUES (?, ?, ?, ?)`,
			i, c.Term, c.Definition, string(ctxJSON),
		); err != nil {
			return fmt.Errorf("inserting concept %q: %w", c.Term, err)
		}
	}

	return tx.Commit()
}

// readIndex loads the index at ref. A missing or unreadable file reports
// types.ErrIndexNotFound.
func readIndex(ctx context.Context, ref string) (*index, error) {
	if ref == "" || !fileExists(ref) {
		return nil, fmt.Errorf("%w: %s", types.ErrIndexNotFound, ref)
	}
	db, err := sql.Open("sqlite3", sqliteDSN(ref, "ro"))
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", types.ErrIndexNotFound, ref, err)
	}
	defer db.Close()

	idx := &index{kb: &types.KnowledgeBase{IndexRef: ref}}

	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrIndexNotFound, ref, err)
	}
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning meta: %w", err)
		}
		switch k {
		case metaPaperID:
			idx.kb.PaperID = string(v)
		case metaProvider:
			idx.provider = string(v)
		case metaState:
			idx.state = v
		case metaBuiltAt:
			idx.builtAt, _ = time.Parse(time.RFC3339Nano, string(v))
		case metaText:
			idx.kb.Text = string(v)
		}
	}
	rows.Close()

	rows, err = db.QueryContext(ctx,
		`SELECT ordinal, id, text, section, page, idx, vector FROM chunks ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	idx.kb.Chunks = []types.Chunk{}
	for rows.Next() {
		var c types.Chunk
		var vec []byte
		if err := rows.Scan(&c.Ordinal, &c.ID, &c.Text, &c.Section, &c.Page, &c.Index, &vec); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		idx.kb.Chunks = append(idx.kb.Chunks, c)
		idx.vectors = append(idx.vectors, decodeVector(vec))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = db.QueryContext(ctx,
		`SELECT term, definition, context FROM concepts ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("querying concepts: %w", err)
	}
	defer rows.Close()
	idx.kb.Concepts = []types.Concept{}
	for rows.Next() {
		var c types.Concept
		var def, ctxJSON sql.NullString
		if err := rows.Scan(&c.Term, &def, &ctxJSON); err != nil {
			return nil, fmt.Errorf("scanning concept: %w", err)
		}
		c.Definition = def.String
		if ctxJSON.Valid {
			json.Unmarshal([]byte(ctxJSON.String), &c.Context)
		}
		idx.kb.Concepts = append(idx.kb.Concepts, c)
	}
	return idx, rows.Err()
}

// Load restores the KnowledgeBase persisted at ref.
func Load(ctx context.Context, ref string) (*types.KnowledgeBase, error) {
	idx, err := readIndex(ctx, ref)
	if err != nil {
		return nil, err
	}
	return idx.kb, nil
}

// Versions lists the index files of a paper, oldest first.
func Versions(indexDir, paperID string) ([]string, error) {
	entries, err := os.ReadDir(paperDir(indexDir, paperID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading index directory: %w", err)
	}
	var refs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), indexExt) {
			continue
		}
		refs = append(refs, filepath.Join(paperDir(indexDir, paperID), e.Name()))
	}
	sort.Slice(refs, func(i, j int) bool { return versionKey(refs[i]) < versionKey(refs[j]) })
	return refs, nil
}

// versionKey orders same-instant collisions ("stamp-2") after their base.
func versionKey(ref string) string {
	name := strings.TrimSuffix(filepath.Base(ref), indexExt)
	stamp, n, found := strings.Cut(name, "-")
	if !found {
		return stamp + "-00000"
	}
	seq, err := strconv.Atoi(n)
	if err != nil {
		return name
	}
	return fmt.Sprintf("%s-%05d", stamp, seq)
}

// Latest returns the newest index of a paper. It reports
// types.ErrIndexNotFound when the paper has never been built.
func Latest(indexDir, paperID string) (string, error) {
	refs, err := Versions(indexDir, paperID)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return "", fmt.Errorf("%w: no index for paper %s", types.ErrIndexNotFound, paperID)
	}
	return refs[len(refs)-1], nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
