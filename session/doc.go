// Package session is the host-facing boundary of the bridge.
//
// A Session issues opaque uint64 handles for every engine object a
// host works with (indexes, writers, readers, searchers, queries and
// retrieved documents) and owns their lifetimes. Handles are
// generation-tagged: once released, a handle value never resolves
// again, even if its slot is reused.
//
// Long-running engine calls (open, commit, search, document retrieval)
// run with the host execution lock released, so a host serializing its
// own state behind that lock is not stalled by the engine.
//
// The usual flow:
//
//	s, _ := session.New(session.WithQueryCache(0))
//	defer s.Close()
//
//	idx, _ := s.OpenOrCreateIndex(dir, fields)
//	w, _ := s.Writer(idx, 0)
//	s.AddDocument(w, doc)
//	s.Commit(ctx, w)
//	s.Release(w)
//
//	r, _ := s.Reader(idx)
//	sr, _ := s.Searcher(r)
//	q, _ := s.ParseQuery(idx, `title:mice AND year:[1930 TO 1940]`)
//	res, _ := s.Search(ctx, sr, q, engine.SearchOptions{Limit: 10})
package session
