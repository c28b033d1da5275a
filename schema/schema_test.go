package schema

import (
	"testing"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
)

func textField(name string) Field {
	return Field{Name: name, Type: searchbridge.FieldTypeText, Stored: true, Indexed: true}
}

func TestBuildBasic(t *testing.T) {
	s, err := Build([]Field{
		textField("title"),
		{Name: "rating", Type: searchbridge.FieldTypeUnsigned, Bits: 8, Indexed: true, Fast: true},
		{Name: "published", Type: searchbridge.FieldTypeDate, Stored: true, Indexed: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	f, ok := s.Field("rating")
	if !ok {
		t.Fatal("rating missing")
	}
	if vt := f.ValueType(); vt.Kind != searchbridge.FieldTypeUnsigned || vt.Bits != 8 {
		t.Fatalf("value type = %v", vt)
	}
	if _, ok := s.Field("missing"); ok {
		t.Fatal("unknown field resolved")
	}
	if s.Mapping() == nil {
		t.Fatal("no mapping built")
	}
}

func TestBuildRejectsUselessField(t *testing.T) {
	_, err := Build([]Field{
		{Name: "ghost", Type: searchbridge.FieldTypeText},
	})
	if !errors.IsKind(err, errors.KindEmptySchemaField) {
		t.Fatalf("got %v, want empty_schema_field", err)
	}

	// Same descriptor with indexed=true succeeds.
	_, err = Build([]Field{
		{Name: "ghost", Type: searchbridge.FieldTypeText, Indexed: true},
	})
	if err != nil {
		t.Fatalf("indexed variant failed: %v", err)
	}
}

func TestBuildRejectsDuplicates(t *testing.T) {
	_, err := Build([]Field{textField("title"), textField("title")})
	if !errors.IsKind(err, errors.KindSchemaError) {
		t.Fatalf("got %v, want schema_error", err)
	}

	// Names are case-sensitive: Title and title coexist.
	if _, err := Build([]Field{textField("title"), textField("Title")}); err != nil {
		t.Fatalf("case-distinct names rejected: %v", err)
	}
}

func TestBuildOptionRules(t *testing.T) {
	cases := []struct {
		name  string
		field Field
	}{
		{"fast text", Field{Name: "t", Type: searchbridge.FieldTypeText, Indexed: true, Fast: true}},
		{"bits on text", Field{Name: "t", Type: searchbridge.FieldTypeText, Indexed: true, Bits: 8}},
		{"odd width", Field{Name: "n", Type: searchbridge.FieldTypeInteger, Indexed: true, Bits: 12}},
		{"analyzer on numeric", Field{Name: "n", Type: searchbridge.FieldTypeFloat, Indexed: true, Analyzer: AnalyzerSimple}},
		{"unknown analyzer", Field{Name: "t", Type: searchbridge.FieldTypeText, Indexed: true, Analyzer: "nope"}},
		{"bad name", Field{Name: "9lives", Type: searchbridge.FieldTypeText, Indexed: true}},
		{"reserved prefix", Field{Name: "_meta", Type: searchbridge.FieldTypeText, Indexed: true}},
	}
	for _, tc := range cases {
		if _, err := Build([]Field{tc.field}); !errors.IsKind(err, errors.KindSchemaError) {
			t.Errorf("%s: got %v, want schema_error", tc.name, err)
		}
	}
}

func TestBuildAllOrNothing(t *testing.T) {
	// One bad field in the middle aborts everything.
	_, err := Build([]Field{
		textField("ok1"),
		{Name: "bad", Type: searchbridge.FieldTypeText},
		textField("ok2"),
	})
	if err == nil {
		t.Fatal("expected build to abort")
	}
}

func TestSchemaEqualAndPersistence(t *testing.T) {
	fields := []Field{
		textField("title"),
		{Name: "year", Type: searchbridge.FieldTypeUnsigned, Bits: 16, Indexed: true},
	}
	a, err := Build(fields)
	if err != nil {
		t.Fatal(err)
	}

	data, err := a.EncodeJSON()
	if err != nil {
		t.Fatal(err)
	}
	b, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if !a.Equal(b) {
		t.Fatal("round-tripped schema not equal")
	}

	c, _ := Build([]Field{textField("title")})
	if a.Equal(c) {
		t.Fatal("different schemas reported equal")
	}
}

func TestAnalyzeStandard(t *testing.T) {
	s, err := Build([]Field{textField("body")})
	if err != nil {
		t.Fatal(err)
	}

	tokens, err := s.Analyze("body", "Hello, World")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("tokens = %+v, want 2", tokens)
	}
	if tokens[0].Text != "hello" || tokens[1].Text != "world" {
		t.Fatalf("terms = %q %q", tokens[0].Text, tokens[1].Text)
	}
	if tokens[0].Position >= tokens[1].Position {
		t.Fatal("positions not increasing")
	}
	if tokens[1].Start <= tokens[0].End {
		t.Fatal("offsets not advancing")
	}
}

func TestAnalyzeKeywordField(t *testing.T) {
	s, err := Build([]Field{
		{Name: "tag", Type: searchbridge.FieldTypeText, Indexed: true, Analyzer: AnalyzerKeyword},
	})
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := s.Analyze("tag", "New York")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0].Text != "New York" {
		t.Fatalf("keyword tokens = %+v", tokens)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	s, err := Build([]Field{
		textField("body"),
		{Name: "year", Type: searchbridge.FieldTypeUnsigned, Indexed: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Analyze("nope", "x"); !errors.IsKind(err, errors.KindUnknownField) {
		t.Fatalf("unknown field: got %v", err)
	}
	if _, err := s.Analyze("year", "x"); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Fatalf("non-text field: got %v", err)
	}
}

func TestNgramAnalyzersRegister(t *testing.T) {
	s, err := Build([]Field{
		{Name: "auto", Type: searchbridge.FieldTypeText, Indexed: true, Analyzer: AnalyzerEdgeNgram},
		{Name: "fuzzy", Type: searchbridge.FieldTypeText, Indexed: true, Analyzer: AnalyzerNgram},
	})
	if err != nil {
		t.Fatalf("Build with ngram analyzers: %v", err)
	}

	tokens, err := s.Analyze("auto", "search")
	if err != nil {
		t.Fatal(err)
	}
	// Edge ngrams of "search" with min 2 max 3: "se", "sea".
	got := map[string]bool{}
	for _, tok := range tokens {
		got[tok.Text] = true
	}
	if !got["se"] || !got["sea"] {
		t.Fatalf("edge ngram tokens = %+v", tokens)
	}
}
