// Package schema translates declarative field descriptors into the
// engine's index mapping.
//
// A schema is an ordered sequence of field descriptors (name, type,
// indexing options). Construction validates everything up front and is
// all-or-nothing: one bad descriptor and no schema is produced. Once bound
// to an index the schema never changes.
//
// Field options follow the engine's model: Stored fields can be retrieved
// from search results, Indexed fields can be queried, Fast fields get
// columnar access and can order results. A field that is neither stored nor
// indexed is useless and rejected with empty_schema_field.
//
// Text fields pick one of a small set of analyzers (standard, simple,
// keyword, ngram, edge_ngram); the ngram variants are registered on the
// mapping as custom analyzers. Analyze exposes the resulting token streams
// for debugging.
package schema
