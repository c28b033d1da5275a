// Package engine adapts the embedded full-text engine behind the
// bridge's own types.
//
// This package wraps bleve to provide index lifecycle, buffered
// writing with commit/rollback semantics, snapshot-style readers and
// query execution, without leaking engine types to the rest of the
// bridge.
//
// # Architecture
//
// The engine package provides four main types:
//
//	Index    - An open index: store, schema, writer exclusivity
//	Writer   - Buffers adds/deletes, applies them on Commit
//	Reader   - A reload generation over the index
//	Searcher - Executes queries pinned to a reader generation
//
// # Write Flow
//
//  1. NewWriter() claims the index's single writer slot
//  2. AddDocument()/DeleteDocuments() buffer operations in order
//  3. Crossing the heap budget flushes buffered adds early
//  4. Commit() applies everything and reports the final opstamp
//  5. Rollback() discards what Commit has not yet applied
//
// On-disk indexes additionally hold a file lock while a Writer is
// open, so a second process observes writer_already_open rather than
// corrupting the store.
//
// # Stored Representation
//
// Values cross into the engine in a normalized form: dates as RFC 3339
// strings, blobs as base64 keyword terms, facets and addresses as
// whole-path keyword terms, JSON objects as dynamic sub-documents with
// a hidden stored companion carrying the raw serialization. Searcher.Doc
// reverses the mapping so hosts get back what they put in.
package engine
