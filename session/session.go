package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/engine"
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/handle"
	"github.com/emberai/search-bridge/hostlock"
	"github.com/emberai/search-bridge/query"
	"github.com/emberai/search-bridge/schema"
)

// DefaultQueryCacheSize is used when WithQueryCache is not given a size.
const DefaultQueryCacheSize = 256

// Option configures a Session.
type Option func(*Session)

// WithQueryCache caches parsed queries keyed by schema, default fields
// and source text. size <= 0 selects DefaultQueryCacheSize.
func WithQueryCache(size int) Option {
	return func(s *Session) {
		if size <= 0 {
			size = DefaultQueryCacheSize
		}
		s.cacheSize = size
	}
}

// WithAutoReload makes readers watch their index directory and report
// staleness as commits land, instead of requiring polling.
func WithAutoReload() Option {
	return func(s *Session) { s.reloadPolicy = engine.ReloadOnCommit }
}

// WithHeapBudget sets the default writer heap budget, in bytes.
func WithHeapBudget(n uint64) Option {
	return func(s *Session) { s.heapBudget = n }
}

// Session is the host-facing surface of the bridge. Every engine
// object a host touches lives behind an opaque handle issued here, and
// every long-running engine call runs with the host's execution lock
// released.
//
// A Session is safe for concurrent use.
type Session struct {
	lock  *hostlock.Lock
	reg   *handle.Registry
	cache *query.Cache

	reloadPolicy engine.ReloadPolicy
	heapBudget   uint64
	cacheSize    int

	mu     sync.Mutex
	closed bool
}

// New creates a Session.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		lock: hostlock.New(),
		reg:  handle.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize > 0 {
		c, err := query.NewCache(s.cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = c
	}
	return s, nil
}

// Close releases every live handle and shuts the session down. It is
// idempotent; all handles issued by the session become invalid.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	Logger().Debug("session closing", zap.Int("handles", s.reg.Len()))
	return s.reg.Close()
}

func (s *Session) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Closed("session")
	}
	return nil
}

// get resolves a handle of the expected kind to its native object.
func get[T any](s *Session, h uint64, kind handle.Kind) (T, error) {
	var zero T
	v, err := s.reg.GetKinded(handle.Handle(h), kind)
	if err != nil {
		return zero, err
	}
	obj, ok := v.(T)
	if !ok {
		return zero, errors.InvalidHandle(h)
	}
	return obj, nil
}

// OpenOrCreateIndex opens the index at path, creating it with the
// given fields when absent, and returns its handle. An empty path
// creates an in-memory index.
func (s *Session) OpenOrCreateIndex(path string, fields []schema.Field) (uint64, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	sch, err := schema.Build(fields)
	if err != nil {
		return 0, err
	}
	s.lock.Acquire()
	defer s.lock.Release()
	ix, err := hostlock.Do(s.lock, func() (*engine.Index, error) {
		return engine.OpenOrCreate(path, sch)
	})
	if err != nil {
		return 0, err
	}
	h := s.reg.Insert(handle.KindIndex, ix)
	if h == 0 {
		ix.Drop()
		return 0, errors.Closed("session")
	}
	Logger().Debug("index opened", zap.String("path", path), zap.Uint64("handle", uint64(h)))
	return uint64(h), nil
}

// OpenIndex opens an existing on-disk index using its persisted schema.
func (s *Session) OpenIndex(path string) (uint64, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	s.lock.Acquire()
	defer s.lock.Release()
	ix, err := hostlock.Do(s.lock, func() (*engine.Index, error) {
		return engine.Open(path)
	})
	if err != nil {
		return 0, err
	}
	h := s.reg.Insert(handle.KindIndex, ix)
	if h == 0 {
		ix.Drop()
		return 0, errors.Closed("session")
	}
	return uint64(h), nil
}

// SchemaFields returns the field descriptors of an index's schema.
func (s *Session) SchemaFields(indexH uint64) ([]schema.Field, error) {
	ix, err := get[*engine.Index](s, indexH, handle.KindIndex)
	if err != nil {
		return nil, err
	}
	return ix.Schema().Fields(), nil
}

// Analyze runs a text field's analyzer over text and returns the
// tokens the engine would index for it.
func (s *Session) Analyze(indexH uint64, field, text string) ([]schema.Token, error) {
	ix, err := get[*engine.Index](s, indexH, handle.KindIndex)
	if err != nil {
		return nil, err
	}
	return ix.Schema().Analyze(field, text)
}

// Writer opens the index's single writer and returns its handle.
// heapBudget zero selects the session default.
func (s *Session) Writer(indexH uint64, heapBudget uint64) (uint64, error) {
	ix, err := get[*engine.Index](s, indexH, handle.KindIndex)
	if err != nil {
		return 0, err
	}
	if heapBudget == 0 {
		heapBudget = s.heapBudget
	}
	w, err := engine.NewWriter(ix, heapBudget)
	if err != nil {
		return 0, err
	}
	h := s.reg.Insert(handle.KindWriter, w)
	if h == 0 {
		w.Drop()
		return 0, errors.Closed("session")
	}
	return uint64(h), nil
}

// AddDocument buffers a document on the writer and returns its opstamp.
// Field values are ordered multi-value lists keyed by field name.
func (s *Session) AddDocument(writerH uint64, doc map[string][]any) (uint64, error) {
	w, err := get[*engine.Writer](s, writerH, handle.KindWriter)
	if err != nil {
		return 0, err
	}
	stamp, _, err := w.AddDocument(doc)
	return stamp, err
}

// DeleteDocuments buffers the deletion of every document whose field
// contains term, returning the operation's opstamp.
func (s *Session) DeleteDocuments(writerH uint64, field string, term searchbridge.Value) (uint64, error) {
	w, err := get[*engine.Writer](s, writerH, handle.KindWriter)
	if err != nil {
		return 0, err
	}
	return w.DeleteDocuments(field, term)
}

// Commit applies the writer's buffered operations and makes them
// visible to subsequently reloaded readers.
func (s *Session) Commit(ctx context.Context, writerH uint64) (engine.CommitMeta, error) {
	w, err := get[*engine.Writer](s, writerH, handle.KindWriter)
	if err != nil {
		return engine.CommitMeta{}, err
	}
	s.lock.Acquire()
	defer s.lock.Release()
	return hostlock.Do(s.lock, func() (engine.CommitMeta, error) {
		return w.Commit(ctx)
	})
}

// Rollback discards the writer's buffered operations.
func (s *Session) Rollback(writerH uint64) (uint64, error) {
	w, err := get[*engine.Writer](s, writerH, handle.KindWriter)
	if err != nil {
		return 0, err
	}
	return w.Rollback()
}

// Reader opens a reader over the index and returns its handle.
func (s *Session) Reader(indexH uint64) (uint64, error) {
	ix, err := get[*engine.Index](s, indexH, handle.KindIndex)
	if err != nil {
		return 0, err
	}
	r, err := engine.NewReader(ix, s.reloadPolicy)
	if err != nil {
		return 0, err
	}
	h := s.reg.Insert(handle.KindReader, r)
	if h == 0 {
		r.Drop()
		return 0, errors.Closed("session")
	}
	return uint64(h), nil
}

// Reload advances a reader to the latest committed state.
func (s *Session) Reload(readerH uint64) error {
	r, err := get[*engine.Reader](s, readerH, handle.KindReader)
	if err != nil {
		return err
	}
	return r.Reload()
}

// Stale reports whether commits landed since the reader's last reload.
func (s *Session) Stale(readerH uint64) (bool, error) {
	r, err := get[*engine.Reader](s, readerH, handle.KindReader)
	if err != nil {
		return false, err
	}
	return r.Stale(), nil
}

// Searcher pins a searcher to the reader's current generation and
// returns its handle.
func (s *Session) Searcher(readerH uint64) (uint64, error) {
	r, err := get[*engine.Reader](s, readerH, handle.KindReader)
	if err != nil {
		return 0, err
	}
	sr, err := r.Searcher()
	if err != nil {
		return 0, err
	}
	h := s.reg.Insert(handle.KindSearcher, sr)
	if h == 0 {
		return 0, errors.Closed("session")
	}
	return uint64(h), nil
}

// ParseQuery parses query text against the index's schema and returns
// a query handle. Parse errors carry the byte offset of the offending
// token. Unfielded terms search defaultFields, or every indexed text
// field when none are given.
func (s *Session) ParseQuery(indexH uint64, src string, defaultFields ...string) (uint64, error) {
	ix, err := get[*engine.Index](s, indexH, handle.KindIndex)
	if err != nil {
		return 0, err
	}
	var q *query.Query
	if s.cache != nil {
		q, err = s.cache.Parse(ix.Schema(), src, defaultFields...)
	} else {
		q, err = query.Parse(ix.Schema(), src, defaultFields...)
	}
	if err != nil {
		return 0, err
	}
	h := s.reg.Insert(handle.KindQuery, q)
	if h == 0 {
		return 0, errors.Closed("session")
	}
	return uint64(h), nil
}

// BuildQuery compiles a structured query tree against the index's
// schema and returns a query handle. Trees skip the text grammar
// entirely, so hosts with their own query representation do not have
// to serialize through it.
func (s *Session) BuildQuery(indexH uint64, root query.Node, defaultFields ...string) (uint64, error) {
	ix, err := get[*engine.Index](s, indexH, handle.KindIndex)
	if err != nil {
		return 0, err
	}
	q, err := query.FromTree(ix.Schema(), root, defaultFields...)
	if err != nil {
		return 0, err
	}
	h := s.reg.Insert(handle.KindQuery, q)
	if h == 0 {
		return 0, errors.Closed("session")
	}
	return uint64(h), nil
}

// Search executes a query on a searcher. The host execution lock is
// released for the duration of the engine call.
func (s *Session) Search(ctx context.Context, searcherH, queryH uint64, opts engine.SearchOptions) (*engine.Result, error) {
	sr, err := get[*engine.Searcher](s, searcherH, handle.KindSearcher)
	if err != nil {
		return nil, err
	}
	q, err := get[*query.Query](s, queryH, handle.KindQuery)
	if err != nil {
		return nil, err
	}
	s.lock.Acquire()
	defer s.lock.Release()
	return hostlock.Do(s.lock, func() (*engine.Result, error) {
		return sr.Search(ctx, q, opts)
	})
}

// NumDocs returns the number of documents visible to the searcher.
func (s *Session) NumDocs(searcherH uint64) (uint64, error) {
	sr, err := get[*engine.Searcher](s, searcherH, handle.KindSearcher)
	if err != nil {
		return 0, err
	}
	return sr.NumDocs()
}

// DocFreq returns how many documents visible to the searcher contain
// term in field.
func (s *Session) DocFreq(ctx context.Context, searcherH uint64, field string, term searchbridge.Value) (uint64, error) {
	sr, err := get[*engine.Searcher](s, searcherH, handle.KindSearcher)
	if err != nil {
		return 0, err
	}
	s.lock.Acquire()
	defer s.lock.Release()
	return hostlock.Do(s.lock, func() (uint64, error) {
		return sr.DocFreq(ctx, field, term)
	})
}

// Doc retrieves a hit's stored fields and returns a document handle.
func (s *Session) Doc(ctx context.Context, searcherH uint64, docID string) (uint64, error) {
	sr, err := get[*engine.Searcher](s, searcherH, handle.KindSearcher)
	if err != nil {
		return 0, err
	}
	s.lock.Acquire()
	defer s.lock.Release()
	doc, err := hostlock.Do(s.lock, func() (map[string][]any, error) {
		return sr.Doc(ctx, docID)
	})
	if err != nil {
		return 0, err
	}
	h := s.reg.Insert(handle.KindDocument, doc)
	if h == 0 {
		return 0, errors.Closed("session")
	}
	return uint64(h), nil
}

// DocumentFields returns the stored fields behind a document handle in
// host representation, multi-value order preserved.
func (s *Session) DocumentFields(docH uint64) (map[string][]any, error) {
	return get[map[string][]any](s, docH, handle.KindDocument)
}

// KindOf reports what a live handle refers to.
func (s *Session) KindOf(h uint64) (handle.Kind, bool) {
	return s.reg.KindOf(handle.Handle(h))
}

// Release frees a handle and tears down the object behind it.
// Releasing an already-released or unknown handle is a no-op.
func (s *Session) Release(h uint64) {
	s.reg.Release(handle.Handle(h))
}

// Handles returns the number of live handles.
func (s *Session) Handles() int { return s.reg.Len() }
