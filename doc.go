// Package searchbridge exposes an embedded full-text search engine through
// opaque, typed handles so that an embedding host with a foreign memory and
// concurrency model (a plugin host, scripting VM, or FFI caller) can drive
// indexing and search without ever holding a direct engine reference.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	searchbridge/        Root package with field types and the Value union
//	├── session/         High-level binding surface: every boundary operation
//	├── handle/          Typed handle registry with deterministic release
//	├── marshal/         Host value <-> typed field value conversion
//	├── schema/          Declarative schema -> engine index mapping
//	├── query/           Query-string grammar and structured query trees
//	├── engine/          Black-box engine adapter (bleve)
//	├── hostlock/        Cooperative host lock released around long calls
//	└── errors/          Structured error taxonomy with stable codes
//
// # Quick Start
//
//	s, err := session.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	idx, err := s.OpenOrCreateIndex(dir, []schema.Field{
//	    {Name: "title", Type: searchbridge.FieldTypeText, Stored: true, Indexed: true},
//	    {Name: "body", Type: searchbridge.FieldTypeText, Indexed: true},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, _ := s.Writer(idx, 16<<20)
//	s.AddDocument(w, map[string][]any{
//	    "title": {"Of Mice and Men"},
//	    "body":  {"A few miles south of Soledad..."},
//	})
//	s.Commit(ctx, w)
//
//	r, _ := s.Reader(idx)
//	sr, _ := s.Searcher(r)
//	q, _ := s.ParseQuery(idx, `title:mice`)
//	res, _ := s.Search(ctx, sr, q, engine.SearchOptions{Limit: 10})
//
// # Handles
//
// Every engine object (index, writer, reader, searcher, query, document) is
// reachable only through a handle issued by the registry. A released handle
// fails deterministically with an invalid_handle error; release is
// idempotent. Handles are typed, and using a handle with an operation that
// expects a different kind fails with type_mismatch.
//
// # Thread Safety
//
// The session serializes host-side work under a single cooperative lock,
// mirroring a host with one thread of control. The lock is released around
// every engine call that can block on I/O or CPU-bound work (open, add,
// commit, search, reload), so other host-side operations can proceed while
// the engine works. Engine-internal concurrency (background merging,
// snapshot management) is the engine's own business and is invisible at
// this boundary.
//
// # Errors
//
// Every failure crossing the boundary is a *errors.Error carrying a stable
// code, a human-readable message, and, for query parse failures, the byte
// offset of the offending input. No engine error propagates opaque.
package searchbridge
