package engine

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/schema"
)

// schemaFile is the descriptor persisted next to the engine's own files
// in an on-disk index directory. It pins the schema the index was
// created with so later opens can detect drift.
const schemaFile = "schema.json"

// Index is an open engine index. It owns the underlying store and the
// writer-exclusivity flag; Writers, Readers and Searchers are created
// from it and must be closed before the Index itself.
type Index struct {
	mu       sync.Mutex
	path     string
	schema   *schema.Schema
	idx      bleve.Index
	writerOn bool
	closed   bool
}

// OpenOrCreate opens the index at path, creating it when absent. An
// empty path creates a volatile in-memory index. For on-disk indexes
// the schema is persisted on create and compared on open; a schema
// that differs from the persisted one fails with a schema_mismatch.
func OpenOrCreate(path string, s *schema.Schema) (*Index, error) {
	if s == nil {
		return nil, errors.SchemaInvalid("", "nil schema")
	}

	if path == "" {
		idx, err := bleve.NewMemOnly(s.Mapping())
		if err != nil {
			return nil, errors.IO("create", err)
		}
		Logger().Debug("opened in-memory index")
		return &Index{path: path, schema: s, idx: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.IO("mkdir", err)
	}

	existing, err := loadSchemaFile(path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Equal(s) {
			return nil, errors.SchemaMismatch(path)
		}
		if err := validateIntegrity(path); err != nil {
			return nil, err
		}
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, errors.IO("open", err)
		}
		Logger().Debug("opened index", zap.String("path", path))
		return &Index{path: path, schema: s, idx: idx}, nil
	}

	// The engine refuses to create over an existing path; an empty
	// leftover directory is fine to reclaim.
	if entries, err := os.ReadDir(path); err == nil && len(entries) == 0 {
		if err := os.Remove(path); err != nil {
			return nil, errors.IO("remove", err)
		}
	}

	idx, err := bleve.New(path, s.Mapping())
	if err != nil {
		return nil, errors.IO("create", err)
	}
	if err := writeSchemaFile(path, s); err != nil {
		idx.Close()
		return nil, err
	}
	Logger().Debug("created index", zap.String("path", path))
	return &Index{path: path, schema: s, idx: idx}, nil
}

// Open opens an existing on-disk index using its persisted schema.
func Open(path string) (*Index, error) {
	s, err := loadSchemaFile(path)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.IO("open", os.ErrNotExist)
	}
	return OpenOrCreate(path, s)
}

// Schema returns the schema the index was opened with.
func (ix *Index) Schema() *schema.Schema { return ix.schema }

// Path returns the index directory, or "" for an in-memory index.
func (ix *Index) Path() string { return ix.path }

// InMemory reports whether the index has no on-disk presence.
func (ix *Index) InMemory() bool { return ix.path == "" }

// Close releases the underlying store. It is idempotent. Closing an
// index invalidates every Writer, Reader and Searcher derived from it.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	if err := ix.idx.Close(); err != nil {
		return errors.IO("close", err)
	}
	return nil
}

// Drop implements handle teardown. Close errors are logged, not
// surfaced; a dropped handle has no caller left to report to.
func (ix *Index) Drop() {
	if err := ix.Close(); err != nil {
		Logger().Warn("index drop", zap.Error(err))
	}
}

func (ix *Index) live() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return errors.Closed("index")
	}
	return nil
}

func (ix *Index) acquireWriter() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return errors.Closed("index")
	}
	if ix.writerOn {
		return errors.WriterOpen(ix.path)
	}
	ix.writerOn = true
	return nil
}

func (ix *Index) releaseWriter() {
	ix.mu.Lock()
	ix.writerOn = false
	ix.mu.Unlock()
}

// validateIntegrity rejects index directories whose engine metadata is
// missing or unreadable, before the engine itself trips over them.
func validateIntegrity(path string) error {
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return errors.New(errors.PhaseEngine, errors.KindIO).
			Detail("index metadata missing at %s", path).Build()
	}
	if err != nil {
		return errors.IO("stat", err)
	}
	if info.Size() == 0 {
		return errors.New(errors.PhaseEngine, errors.KindIO).
			Detail("index metadata empty at %s", path).Build()
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return errors.IO("read", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return errors.New(errors.PhaseEngine, errors.KindIO).
			Cause(err).Detail("index metadata corrupt at %s", path).Build()
	}
	return nil
}

func loadSchemaFile(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(filepath.Join(path, schemaFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IO("read", err)
	}
	return schema.DecodeJSON(data)
}

func writeSchemaFile(path string, s *schema.Schema) error {
	data, err := s.EncodeJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(path, schemaFile), data, 0o644); err != nil {
		return errors.IO("write", err)
	}
	return nil
}

// valueText renders a field value as the term text the engine indexes
// for it, so term-level operations (deletes, doc-frequency probes) hit
// the same terms that AddDocument produced.
func valueText(v searchbridge.Value) string {
	switch v.Type() {
	case searchbridge.FieldTypeText, searchbridge.FieldTypeFacet, searchbridge.FieldTypeIP:
		return v.Str()
	case searchbridge.FieldTypeUnsigned:
		return strconv.FormatUint(v.Uint64(), 10)
	case searchbridge.FieldTypeInteger:
		return strconv.FormatInt(v.Int64(), 10)
	case searchbridge.FieldTypeFloat:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case searchbridge.FieldTypeBoolean:
		return strconv.FormatBool(v.Bool())
	case searchbridge.FieldTypeDate:
		return v.Time().Format(time.RFC3339)
	case searchbridge.FieldTypeBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes())
	}
	return ""
}
