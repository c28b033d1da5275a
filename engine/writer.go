package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/marshal"
	"github.com/emberai/search-bridge/query"
	"github.com/emberai/search-bridge/schema"
)

// writerLockFile guards on-disk indexes against a second writer from
// another process. In-process exclusivity is enforced by the Index.
const writerLockFile = ".writer.lock"

// DefaultHeapBudget is the buffered-document budget a Writer uses when
// the caller does not specify one.
const DefaultHeapBudget = 64 << 20

// CommitMeta describes a completed commit.
type CommitMeta struct {
	Opstamp uint64
	Docs    uint64
}

type writeOp struct {
	doc   map[string]any
	id    string
	field string
	term  string
	del   bool
	size  uint64
}

// Writer buffers document additions and deletions and applies them to
// the index on Commit. At most one Writer per index may be open at a
// time, across processes for on-disk indexes.
type Writer struct {
	mu         sync.Mutex
	ix         *Index
	fl         *flock.Flock
	ops        []writeOp
	pending    uint64
	heapBudget uint64
	opstamp    uint64
	committed  uint64
	closed     bool
}

// NewWriter opens the index's single writer. heapBudget bounds the
// bytes of buffered documents before the writer flushes early; zero
// selects DefaultHeapBudget. A second writer fails with
// writer_already_open until the first is closed.
func NewWriter(ix *Index, heapBudget uint64) (*Writer, error) {
	if err := ix.acquireWriter(); err != nil {
		return nil, err
	}
	if heapBudget == 0 {
		heapBudget = DefaultHeapBudget
	}
	w := &Writer{ix: ix, heapBudget: heapBudget}
	if !ix.InMemory() {
		w.fl = flock.New(filepath.Join(ix.path, writerLockFile))
		locked, err := w.fl.TryLock()
		if err != nil {
			ix.releaseWriter()
			return nil, errors.IO("lock", err)
		}
		if !locked {
			ix.releaseWriter()
			return nil, errors.WriterOpen(ix.path)
		}
	}
	return w, nil
}

// AddDocument buffers a document for the next commit and returns its
// opstamp and generated identifier. Field values are given as ordered
// multi-value lists keyed by schema field name; every value must
// already match its field's declared type.
func (w *Writer) AddDocument(doc map[string][]any) (uint64, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, "", errors.Closed("writer")
	}

	bdoc, size, err := w.convert(doc)
	if err != nil {
		return 0, "", err
	}

	id := uuid.NewString()
	w.opstamp++
	w.ops = append(w.ops, writeOp{id: id, doc: bdoc, size: size})
	w.pending += size

	if w.pending >= w.heapBudget {
		Logger().Debug("writer budget reached, flushing",
			zap.Uint64("pending", w.pending),
			zap.Uint64("budget", w.heapBudget))
		if err := w.applyLocked(context.Background()); err != nil {
			return 0, "", err
		}
	}
	return w.opstamp, id, nil
}

// DeleteDocuments buffers the deletion of every document whose field
// contains the given term. The deletion applies at commit, after the
// additions buffered before it.
func (w *Writer) DeleteDocuments(field string, term searchbridge.Value) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errors.Closed("writer")
	}
	f, ok := w.ix.schema.Field(field)
	if !ok {
		return 0, errors.UnknownField(errors.PhaseEngine, field)
	}
	if f.Type != term.Type() {
		return 0, errors.TypeMismatch(errors.PhaseEngine, []string{field},
			term.Type().String(), f.Type.String())
	}
	w.opstamp++
	w.ops = append(w.ops, writeOp{del: true, field: field, term: valueText(term)})
	return w.opstamp, nil
}

// Commit applies every buffered operation and makes the result durable.
// It returns the opstamp of the last applied operation and the number
// of documents added since the previous commit.
func (w *Writer) Commit(ctx context.Context) (CommitMeta, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return CommitMeta{}, errors.Closed("writer")
	}
	if err := w.applyLocked(ctx); err != nil {
		return CommitMeta{}, err
	}
	meta := CommitMeta{Opstamp: w.opstamp, Docs: w.committed}
	w.committed = 0
	Logger().Debug("commit",
		zap.Uint64("opstamp", meta.Opstamp),
		zap.Uint64("docs", meta.Docs))
	return meta, nil
}

// Rollback discards every operation buffered since the last commit or
// flush and returns the opstamp of the last committed operation.
func (w *Writer) Rollback() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errors.Closed("writer")
	}
	w.opstamp -= uint64(len(w.ops))
	w.ops = nil
	w.pending = 0
	return w.opstamp, nil
}

// Opstamp returns the stamp of the most recently buffered operation.
func (w *Writer) Opstamp() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opstamp
}

// Close releases writer exclusivity without committing buffered
// operations. It is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.ops = nil
	w.pending = 0
	if w.fl != nil {
		if err := w.fl.Unlock(); err != nil {
			w.ix.releaseWriter()
			return errors.IO("unlock", err)
		}
	}
	w.ix.releaseWriter()
	return nil
}

// Drop implements handle teardown, discarding buffered operations.
func (w *Writer) Drop() {
	if err := w.Close(); err != nil {
		Logger().Warn("writer drop", zap.Error(err))
	}
}

// applyLocked walks the buffered operations in order. Additions
// accumulate into a batch; a deletion forces the batch to the index
// first so it can see the documents added before it.
func (w *Writer) applyLocked(ctx context.Context) error {
	if err := w.ix.live(); err != nil {
		return err
	}
	batch := w.ix.idx.NewBatch()
	for _, op := range w.ops {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.PhaseEngine, errors.KindQueryExecution, err, "commit canceled")
		}
		if !op.del {
			if err := batch.Index(op.id, op.doc); err != nil {
				return errors.ExecFailed(err)
			}
			w.committed++
			continue
		}
		if batch.Size() > 0 {
			if err := w.ix.idx.Batch(batch); err != nil {
				return errors.ExecFailed(err)
			}
			batch = w.ix.idx.NewBatch()
		}
		ids, err := w.matchingIDs(ctx, op.field, op.term)
		if err != nil {
			return err
		}
		for _, id := range ids {
			batch.Delete(id)
		}
		if err := w.ix.idx.Batch(batch); err != nil {
			return errors.ExecFailed(err)
		}
		batch = w.ix.idx.NewBatch()
	}
	if batch.Size() > 0 {
		if err := w.ix.idx.Batch(batch); err != nil {
			return errors.ExecFailed(err)
		}
	}
	w.ops = nil
	w.pending = 0
	return nil
}

func (w *Writer) matchingIDs(ctx context.Context, field, term string) ([]string, error) {
	q, err := query.FromTree(w.ix.schema, query.Term{Field: field, Text: term})
	if err != nil {
		return nil, err
	}
	var ids []string
	const page = 1000
	for from := 0; ; from += page {
		req := bleve.NewSearchRequestOptions(q.Native(), page, from, false)
		res, err := w.ix.idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, errors.ExecFailed(err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if from+len(res.Hits) >= int(res.Total) || len(res.Hits) == 0 {
			break
		}
	}
	return ids, nil
}

// convert turns an ordered host document into the engine's document
// form, validating every value against the schema on the way.
func (w *Writer) convert(doc map[string][]any) (map[string]any, uint64, error) {
	s := w.ix.schema
	out := make(map[string]any, len(doc))
	var size uint64
	for name, hosts := range doc {
		f, ok := s.Field(name)
		if !ok {
			return nil, 0, errors.UnknownField(errors.PhaseMarshal, name)
		}
		vals, err := marshal.Values(name, hosts, f.ValueType())
		if err != nil {
			return nil, 0, err
		}
		conv := make([]any, 0, len(vals))
		for _, v := range vals {
			cv, n := engineValue(f.Type, v)
			conv = append(conv, cv)
			size += n + 48
		}
		switch {
		case len(conv) == 1:
			out[name] = conv[0]
		case len(conv) > 1:
			out[name] = conv
		}
		if f.Type == searchbridge.FieldTypeJSON && f.Stored {
			raw, err := rawJSON(vals)
			if err != nil {
				return nil, 0, err
			}
			out[schema.RawJSONField(name)] = raw
			size += uint64(len(raw))
		}
	}
	return out, size, nil
}

// rawJSON serializes a JSON field's values for the stored companion
// field. A single value stores as one object, several as an array.
func rawJSON(vals []searchbridge.Value) (string, error) {
	var v any
	if len(vals) == 1 {
		v = vals[0].JSON()
	} else {
		objs := make([]map[string]any, 0, len(vals))
		for _, val := range vals {
			objs = append(objs, val.JSON())
		}
		v = objs
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(errors.PhaseMarshal, errors.KindTypeMismatch, err, "json value not serializable")
	}
	return string(data), nil
}

// engineValue maps a bridge value to what the engine indexes for its
// field type, plus a rough size estimate for the heap budget.
func engineValue(t searchbridge.FieldType, v searchbridge.Value) (any, uint64) {
	switch t {
	case searchbridge.FieldTypeText, searchbridge.FieldTypeFacet, searchbridge.FieldTypeIP:
		return v.Str(), uint64(len(v.Str()))
	case searchbridge.FieldTypeUnsigned:
		return v.Uint64(), 8
	case searchbridge.FieldTypeInteger:
		return v.Int64(), 8
	case searchbridge.FieldTypeFloat:
		return v.Float64(), 8
	case searchbridge.FieldTypeBoolean:
		return v.Bool(), 1
	case searchbridge.FieldTypeDate:
		return v.Time().Format(time.RFC3339Nano), 24
	case searchbridge.FieldTypeBytes:
		enc := base64.StdEncoding.EncodeToString(v.Bytes())
		return enc, uint64(len(enc))
	case searchbridge.FieldTypeJSON:
		return v.JSON(), uint64(32 * (1 + len(v.JSON())))
	}
	return nil, 0
}
