// Package query builds schema-validated engine queries from two host
// inputs: a query-string grammar and programmatic structured trees.
//
// The string grammar (see GrammarVersion) covers terms, "phrases",
// AND/OR/NOT with parentheses, field:term scoping and field:[min TO max]
// ranges. Parse failures carry the byte offset of the offending input:
//
//	_, err := query.Parse(s, `title:(mice`)
//	// err.(*errors.Error).Position == offset of the unclosed '('
//
// Structured trees are validated field-by-field: an unscoped clause fans
// out over the default fields, an unknown field fails with unknown_field,
// and an operator a field's type cannot serve (a range over a facet, a
// phrase over a number) fails with unsupported_query_for_field.
//
// A Query is immutable and carries no reference to any index; it can
// outlive readers and be executed many times.
package query
