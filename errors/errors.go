package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the binding the error occurred
type Phase string

const (
	PhaseHandle  Phase = "handle"  // handle registry operations
	PhaseMarshal Phase = "marshal" // host <-> engine value conversion
	PhaseSchema  Phase = "schema"  // schema construction
	PhaseQuery   Phase = "query"   // query parsing and validation
	PhaseEngine  Phase = "engine"  // engine open/writer/commit
	PhaseSearch  Phase = "search"  // query execution
)

// Kind categorizes the error. Kind strings are the stable error codes
// observed by the host; they never change across releases.
type Kind string

const (
	KindInvalidHandle     Kind = "invalid_handle"
	KindTypeMismatch      Kind = "type_mismatch"
	KindSchemaError       Kind = "schema_error"
	KindEmptySchemaField  Kind = "empty_schema_field"
	KindUnknownField      Kind = "unknown_field"
	KindUnsupportedQuery  Kind = "unsupported_query_for_field"
	KindRangeError        Kind = "range_error"
	KindWriterAlreadyOpen Kind = "writer_already_open"
	KindQueryParse        Kind = "query_parse_error"
	KindIO                Kind = "io_error"
	KindSchemaMismatch    Kind = "schema_mismatch"
	KindQueryExecution    Kind = "query_execution_error"
	KindClosed            Kind = "closed"
)

// NoPosition marks errors that carry no byte offset.
const NoPosition = -1

// Error is the structured error type crossing the binding boundary.
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	HostType  string
	FieldType string
	Detail    string
	Path      []string
	Position  int
}

// Code returns the stable string code for this error.
func (e *Error) Code() string { return string(e.Kind) }

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Position > NoPosition {
		fmt.Fprintf(&b, " at byte %d", e.Position)
	}

	if e.HostType != "" || e.FieldType != "" {
		b.WriteString(": ")
		switch {
		case e.HostType != "" && e.FieldType != "":
			b.WriteString("host type ")
			b.WriteString(e.HostType)
			b.WriteString(", field type ")
			b.WriteString(e.FieldType)
		case e.HostType != "":
			b.WriteString("host type ")
			b.WriteString(e.HostType)
		default:
			b.WriteString("field type ")
			b.WriteString(e.FieldType)
		}
	}

	if e.Detail != "" {
		if e.HostType != "" || e.FieldType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two errors match when their
// kinds agree; a target with an empty phase matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is a binding error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:    phase,
			Kind:     kind,
			Position: NoPosition,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// HostType sets the host-side Go type name
func (b *Builder) HostType(t string) *Builder {
	b.err.HostType = t
	return b
}

// FieldType sets the engine field type name
func (b *Builder) FieldType(t string) *Builder {
	b.err.FieldType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Position sets the byte offset of the offending input
func (b *Builder) Position(pos int) *Builder {
	b.err.Position = pos
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidHandle creates an error for use of a released or unknown handle.
func InvalidHandle(handle uint64) *Error {
	return &Error{
		Phase:    PhaseHandle,
		Kind:     KindInvalidHandle,
		Detail:   fmt.Sprintf("handle %d is not live", handle),
		Value:    handle,
		Position: NoPosition,
	}
}

// HandleKindMismatch creates an error for a handle used with the wrong kind.
func HandleKindMismatch(handle uint64, want, got string) *Error {
	return &Error{
		Phase:    PhaseHandle,
		Kind:     KindTypeMismatch,
		Detail:   fmt.Sprintf("handle %d holds a %s, operation expects a %s", handle, got, want),
		Value:    handle,
		Position: NoPosition,
	}
}

// TypeMismatch creates a value type mismatch error
func TypeMismatch(phase Phase, path []string, hostType, fieldType string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindTypeMismatch,
		Path:      path,
		HostType:  hostType,
		FieldType: fieldType,
		Position:  NoPosition,
	}
}

// RangeOverflow creates an error for a numeric value outside the declared width
func RangeOverflow(path []string, value any, fieldType string) *Error {
	return &Error{
		Phase:     PhaseMarshal,
		Kind:      KindRangeError,
		Path:      path,
		FieldType: fieldType,
		Detail:    fmt.Sprintf("value %v does not fit %s", value, fieldType),
		Value:     value,
		Position:  NoPosition,
	}
}

// SchemaInvalid creates a schema construction error
func SchemaInvalid(field, detail string) *Error {
	return &Error{
		Phase:    PhaseSchema,
		Kind:     KindSchemaError,
		Path:     []string{field},
		Detail:   detail,
		Position: NoPosition,
	}
}

// EmptySchemaField creates an error for a field neither stored nor indexed
func EmptySchemaField(field string) *Error {
	return &Error{
		Phase:    PhaseSchema,
		Kind:     KindEmptySchemaField,
		Path:     []string{field},
		Detail:   "field is neither stored nor indexed",
		Position: NoPosition,
	}
}

// UnknownField creates an error for a field name absent from the schema
func UnknownField(phase Phase, field string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindUnknownField,
		Path:     []string{field},
		Detail:   fmt.Sprintf("schema has no field %q", field),
		Position: NoPosition,
	}
}

// UnsupportedQuery creates an error for an operator the field's type cannot serve
func UnsupportedQuery(field, fieldType, detail string) *Error {
	return &Error{
		Phase:     PhaseQuery,
		Kind:      KindUnsupportedQuery,
		Path:      []string{field},
		FieldType: fieldType,
		Detail:    detail,
		Position:  NoPosition,
	}
}

// ParseFailed creates a query parse error carrying the offending byte offset
func ParseFailed(pos int, msg string, args ...any) *Error {
	return &Error{
		Phase:    PhaseQuery,
		Kind:     KindQueryParse,
		Detail:   fmt.Sprintf(msg, args...),
		Position: pos,
	}
}

// WriterOpen creates an error for a second concurrent writer on one index
func WriterOpen(path string) *Error {
	return &Error{
		Phase:    PhaseEngine,
		Kind:     KindWriterAlreadyOpen,
		Detail:   fmt.Sprintf("a writer is already open for index %q", path),
		Position: NoPosition,
	}
}

// IO wraps a filesystem or segment failure from the engine
func IO(op string, cause error) *Error {
	return &Error{
		Phase:    PhaseEngine,
		Kind:     KindIO,
		Detail:   op,
		Cause:    cause,
		Position: NoPosition,
	}
}

// SchemaMismatch creates an error for opening an index with a different schema
func SchemaMismatch(path string) *Error {
	return &Error{
		Phase:    PhaseEngine,
		Kind:     KindSchemaMismatch,
		Detail:   fmt.Sprintf("index at %q was created with a different schema", path),
		Position: NoPosition,
	}
}

// ExecFailed wraps an engine failure during query execution
func ExecFailed(cause error) *Error {
	return &Error{
		Phase:    PhaseSearch,
		Kind:     KindQueryExecution,
		Detail:   "execute query",
		Cause:    cause,
		Position: NoPosition,
	}
}

// Closed creates an error for operations on a closed session or registry
func Closed(what string) *Error {
	return &Error{
		Phase:    PhaseHandle,
		Kind:     KindClosed,
		Detail:   fmt.Sprintf("%s is closed", what),
		Position: NoPosition,
	}
}

// Wrap wraps an existing error with phase and kind context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     kind,
		Detail:   detail,
		Cause:    cause,
		Position: NoPosition,
	}
}
