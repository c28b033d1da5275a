package query

import (
	"testing"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build([]schema.Field{
		{Name: "title", Type: searchbridge.FieldTypeText, Stored: true, Indexed: true},
		{Name: "body", Type: searchbridge.FieldTypeText, Indexed: true},
		{Name: "year", Type: searchbridge.FieldTypeUnsigned, Bits: 16, Indexed: true},
		{Name: "published", Type: searchbridge.FieldTypeDate, Indexed: true},
		{Name: "category", Type: searchbridge.FieldTypeFacet, Indexed: true},
		{Name: "active", Type: searchbridge.FieldTypeBoolean, Indexed: true},
		{Name: "meta", Type: searchbridge.FieldTypeJSON, Indexed: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestParseSimple(t *testing.T) {
	s := testSchema(t)

	for _, src := range []string{
		"mice",
		"title:mice",
		`"of mice and men"`,
		`title:"of mice"`,
		"mice AND men",
		"mice men",
		"mice OR men",
		"NOT mice",
		"title:mice AND NOT body:rabbits",
		"(mice OR men) AND year:1937",
		"year:[1930 TO 1940]",
		"year:[1930 TO *]",
		"year:{1930 TO 1940}",
		"published:[1937-01-01 TO 1938-01-01]",
		"category:/fiction/classics",
		"active:true",
		"meta.author:steinbeck",
	} {
		q, err := Parse(s, src)
		if err != nil {
			t.Errorf("Parse(%q): %v", src, err)
			continue
		}
		if q.Native() == nil {
			t.Errorf("Parse(%q): nil native query", src)
		}
		if q.Source() != src {
			t.Errorf("Parse(%q): source = %q", src, q.Source())
		}
	}
}

func TestParseErrorsCarryPosition(t *testing.T) {
	s := testSchema(t)

	cases := []string{
		"(mice AND men",
		`title:"unterminated`,
		"mice AND",
		"title:",
		"year:[1930 TO",
		"year:[1930 1940]",
		"mice) rabbits",
		"",
		"AND mice",
	}
	for _, src := range cases {
		_, err := Parse(s, src)
		if !errors.IsKind(err, errors.KindQueryParse) {
			t.Errorf("Parse(%q): got %v, want query_parse_error", src, err)
			continue
		}
		pos := err.(*errors.Error).Position
		if pos < 0 || pos > len(src) {
			t.Errorf("Parse(%q): position %d outside input", src, pos)
		}
	}
}

func TestParseUnbalancedParenPosition(t *testing.T) {
	s := testSchema(t)
	src := "((title:mice) AND body:men"
	_, err := Parse(s, src)
	if !errors.IsKind(err, errors.KindQueryParse) {
		t.Fatalf("got %v", err)
	}
	pos := err.(*errors.Error).Position
	if pos >= len(src) {
		t.Fatalf("position %d not within input of length %d", pos, len(src))
	}
}

func TestParseUnknownField(t *testing.T) {
	s := testSchema(t)
	_, err := Parse(s, "nosuch:mice")
	if !errors.IsKind(err, errors.KindUnknownField) {
		t.Fatalf("got %v, want unknown_field", err)
	}
}

func TestRangeOnNonOrderableField(t *testing.T) {
	s := testSchema(t)

	_, err := Parse(s, "category:[/a TO /b]")
	if !errors.IsKind(err, errors.KindUnsupportedQuery) {
		t.Fatalf("range on facet: got %v, want unsupported_query_for_field", err)
	}
	_, err = Parse(s, "active:[true TO false]")
	if !errors.IsKind(err, errors.KindUnsupportedQuery) {
		t.Fatalf("range on boolean: got %v", err)
	}
}

func TestPhraseOnNonTextField(t *testing.T) {
	s := testSchema(t)
	_, err := Parse(s, `year:"19 37"`)
	if !errors.IsKind(err, errors.KindUnsupportedQuery) {
		t.Fatalf("got %v, want unsupported_query_for_field", err)
	}
}

func TestBadLiterals(t *testing.T) {
	s := testSchema(t)
	for _, src := range []string{
		"year:abc",
		"active:maybe",
		"published:someday",
		"year:[x TO 10]",
	} {
		if _, err := Parse(s, src); !errors.IsKind(err, errors.KindQueryParse) {
			t.Errorf("Parse(%q): got %v, want query_parse_error", src, err)
		}
	}
}

func TestFromTree(t *testing.T) {
	s := testSchema(t)

	q, err := FromTree(s, Bool{
		Must: []Node{
			Term{Field: "title", Text: "mice"},
			Range{Field: "year", Min: "1930", Max: "1940", MinInclusive: true, MaxInclusive: true},
		},
		MustNot: []Node{Term{Field: "body", Text: "rabbits"}},
	})
	if err != nil {
		t.Fatalf("FromTree: %v", err)
	}
	if q.Native() == nil || q.Source() != "" {
		t.Fatal("tree query malformed")
	}

	_, err = FromTree(s, Term{Field: "nosuch", Text: "x"})
	if !errors.IsKind(err, errors.KindUnknownField) {
		t.Fatalf("unknown field via tree: got %v", err)
	}

	_, err = FromTree(s, Range{Field: "category", Min: "/a", MinInclusive: true})
	if !errors.IsKind(err, errors.KindUnsupportedQuery) {
		t.Fatalf("range over facet via tree: got %v", err)
	}

	_, err = FromTree(s, nil)
	if !errors.IsKind(err, errors.KindQueryParse) {
		t.Fatalf("nil tree: got %v", err)
	}
}

func TestDefaultFields(t *testing.T) {
	s := testSchema(t)

	// Explicit default restricts the fan-out.
	if _, err := Parse(s, "mice", "title"); err != nil {
		t.Fatalf("explicit default: %v", err)
	}

	// A schema without indexed text fields cannot serve unscoped terms.
	numOnly, err := schema.Build([]schema.Field{
		{Name: "n", Type: searchbridge.FieldTypeUnsigned, Indexed: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(numOnly, "mice"); !errors.IsKind(err, errors.KindQueryParse) {
		t.Fatalf("unscoped term without text fields: got %v", err)
	}
}

func TestCache(t *testing.T) {
	s := testSchema(t)
	c, err := NewCache(8)
	if err != nil {
		t.Fatal(err)
	}

	q1, err := c.Parse(s, "title:mice")
	if err != nil {
		t.Fatal(err)
	}
	q2, err := c.Parse(s, "title:mice")
	if err != nil {
		t.Fatal(err)
	}
	if q1 != q2 {
		t.Fatal("second parse should hit the cache")
	}

	// Different default fields miss.
	q3, err := c.Parse(s, "title:mice", "body")
	if err != nil {
		t.Fatal(err)
	}
	if q3 == q1 {
		t.Fatal("different defaults must not share an entry")
	}

	// Failures are not cached.
	if _, err := c.Parse(s, "(broken"); !errors.IsKind(err, errors.KindQueryParse) {
		t.Fatalf("got %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("cache len = %d, want 2", c.Len())
	}
}
