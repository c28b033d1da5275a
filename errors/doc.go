// Package errors provides structured error types for the search-bridge
// binding layer.
//
// Errors are categorized by Phase (where the error occurred) and Kind (the
// stable error code observed by the host). Every native engine failure is
// translated into exactly one Kind before it crosses the boundary; nothing
// propagates as an opaque value.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		Path("tags").
//		HostType("int").
//		FieldType("text").
//		Detail("cannot convert int to text").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.RangeOverflow([]string{"rating"}, 300, "u8")
//	err := errors.ParseFailed(17, "unclosed group")
//
// All errors implement the standard error interface and support
// errors.Is/As. Query parse errors carry the byte offset of the offending
// input in Position.
package errors
