package query

import bleveq "github.com/blevesearch/bleve/v2/search/query"

// GrammarVersion identifies the query-string grammar surface. Bump when the
// grammar grows; hosts can gate features on it.
const GrammarVersion = 1

// Node is one node of a structured query tree built programmatically by
// the host. A tree is validated field-by-field against a schema when it is
// turned into a Query.
type Node interface {
	node()
}

// Term matches documents containing a single term. An empty Field targets
// the default fields supplied at build time.
type Term struct {
	Field string
	Text  string
}

// Phrase matches documents containing the words of Text adjacently and in
// order. Only valid on text fields.
type Phrase struct {
	Field string
	Text  string
}

// Range matches documents whose field value lies between Min and Max.
// Empty bounds are open. Bounds are textual and interpreted according to
// the field's type; only valid on orderable fields.
type Range struct {
	Field        string
	Min          string
	Max          string
	MinInclusive bool
	MaxInclusive bool
}

// Bool combines sub-queries: all of Must, at least one of Should, none of
// MustNot.
type Bool struct {
	Must    []Node
	Should  []Node
	MustNot []Node
}

// MatchAll matches every document.
type MatchAll struct{}

func (Term) node()     {}
func (Phrase) node()   {}
func (Range) node()    {}
func (Bool) node()     {}
func (MatchAll) node() {}

// Query is an immutable, schema-validated query ready for execution. It has
// no lifetime dependency on any index, but must be executed against an
// index whose schema it was validated with.
type Query struct {
	root   Node
	native bleveq.Query
	src    string
}

// Root returns the validated tree.
func (q *Query) Root() Node { return q.root }

// Native returns the engine's typed query.
func (q *Query) Native() bleveq.Query { return q.native }

// Source returns the original query string, or "" for tree-built queries.
func (q *Query) Source() string { return q.src }
