package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	bleveq "github.com/blevesearch/bleve/v2/search/query"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/schema"
)

// compile validates a tree field-by-field against the schema and lowers it
// into the engine's typed query tree.
func compile(s *schema.Schema, n Node, defaults []string) (bleveq.Query, error) {
	switch node := n.(type) {
	case Term:
		return compileTerm(s, node, defaults)
	case Phrase:
		return compilePhrase(s, node, defaults)
	case Range:
		return compileRange(s, node)
	case Bool:
		return compileBool(s, node, defaults)
	case MatchAll:
		return bleve.NewMatchAllQuery(), nil
	}
	return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
		Detail("unsupported query node %T", n).
		Build()
}

func compileTerm(s *schema.Schema, t Term, defaults []string) (bleveq.Query, error) {
	if t.Field == "" {
		return overDefaults(s, defaults, func(field string) (bleveq.Query, error) {
			return compileTerm(s, Term{Field: field, Text: t.Text}, nil)
		})
	}

	f, err := resolveField(s, t.Field)
	if err != nil {
		return nil, err
	}
	switch f.Type {
	case searchbridge.FieldTypeText:
		q := bleve.NewMatchQuery(t.Text)
		q.SetField(t.Field)
		return q, nil

	case searchbridge.FieldTypeJSON:
		q := bleve.NewMatchQuery(t.Text)
		q.SetField(t.Field)
		return q, nil

	case searchbridge.FieldTypeFacet, searchbridge.FieldTypeIP, searchbridge.FieldTypeBytes:
		// Facets, addresses and blobs index whole keyword terms; blobs
		// are matched by their base64 form.
		q := bleve.NewTermQuery(t.Text)
		q.SetField(t.Field)
		return q, nil

	case searchbridge.FieldTypeUnsigned, searchbridge.FieldTypeInteger, searchbridge.FieldTypeFloat:
		v, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
				Path(t.Field).
				Detail("%q is not a number", t.Text).
				Build()
		}
		tv := true
		q := bleve.NewNumericRangeInclusiveQuery(&v, &v, &tv, &tv)
		q.SetField(t.Field)
		return q, nil

	case searchbridge.FieldTypeBoolean:
		switch t.Text {
		case "true":
			q := bleve.NewBoolFieldQuery(true)
			q.SetField(t.Field)
			return q, nil
		case "false":
			q := bleve.NewBoolFieldQuery(false)
			q.SetField(t.Field)
			return q, nil
		}
		return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
			Path(t.Field).
			Detail("%q is not a boolean", t.Text).
			Build()

	case searchbridge.FieldTypeDate:
		at, err := parseDateBound(t.Text)
		if err != nil {
			return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
				Path(t.Field).
				Detail("%q is not a date", t.Text).
				Build()
		}
		tv := true
		q := bleve.NewDateRangeInclusiveQuery(at, at, &tv, &tv)
		q.SetField(t.Field)
		return q, nil
	}

	return nil, errors.UnsupportedQuery(t.Field, f.Type.String(), "term query not supported on this type")
}

func compilePhrase(s *schema.Schema, p Phrase, defaults []string) (bleveq.Query, error) {
	if p.Field == "" {
		return overDefaults(s, defaults, func(field string) (bleveq.Query, error) {
			return compilePhrase(s, Phrase{Field: field, Text: p.Text}, nil)
		})
	}

	f, err := resolveField(s, p.Field)
	if err != nil {
		return nil, err
	}
	if f.Type != searchbridge.FieldTypeText {
		return nil, errors.UnsupportedQuery(p.Field, f.Type.String(), "phrase query requires a text field")
	}
	q := bleve.NewMatchPhraseQuery(p.Text)
	q.SetField(p.Field)
	return q, nil
}

func compileRange(s *schema.Schema, r Range) (bleveq.Query, error) {
	if r.Field == "" {
		return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
			Detail("range query requires a field").
			Build()
	}
	f, err := resolveField(s, r.Field)
	if err != nil {
		return nil, err
	}
	if !f.Type.Orderable() {
		return nil, errors.UnsupportedQuery(r.Field, f.Type.String(), "range query requires an orderable field")
	}
	if r.Min == "" && r.Max == "" {
		return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
			Path(r.Field).
			Detail("range needs at least one bound").
			Build()
	}

	switch f.Type {
	case searchbridge.FieldTypeText:
		// Empty bounds are open in the engine's term range.
		q := bleve.NewTermRangeInclusiveQuery(r.Min, r.Max, &r.MinInclusive, &r.MaxInclusive)
		q.SetField(r.Field)
		return q, nil

	case searchbridge.FieldTypeUnsigned, searchbridge.FieldTypeInteger, searchbridge.FieldTypeFloat:
		var min, max *float64
		if r.Min != "" {
			v, err := strconv.ParseFloat(r.Min, 64)
			if err != nil {
				return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
					Path(r.Field).
					Detail("bound %q is not a number", r.Min).
					Build()
			}
			min = &v
		}
		if r.Max != "" {
			v, err := strconv.ParseFloat(r.Max, 64)
			if err != nil {
				return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
					Path(r.Field).
					Detail("bound %q is not a number", r.Max).
					Build()
			}
			max = &v
		}
		q := bleve.NewNumericRangeInclusiveQuery(min, max, &r.MinInclusive, &r.MaxInclusive)
		q.SetField(r.Field)
		return q, nil

	case searchbridge.FieldTypeDate:
		min, max := time.Time{}, time.Time{}
		if r.Min != "" {
			t, err := parseDateBound(r.Min)
			if err != nil {
				return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
					Path(r.Field).
					Detail("bound %q is not a date", r.Min).
					Build()
			}
			min = t
		}
		if r.Max != "" {
			t, err := parseDateBound(r.Max)
			if err != nil {
				return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
					Path(r.Field).
					Detail("bound %q is not a date", r.Max).
					Build()
			}
			max = t
		}
		q := bleve.NewDateRangeInclusiveQuery(min, max, &r.MinInclusive, &r.MaxInclusive)
		q.SetField(r.Field)
		return q, nil
	}

	return nil, errors.UnsupportedQuery(r.Field, f.Type.String(), "range query not supported on this type")
}

func compileBool(s *schema.Schema, b Bool, defaults []string) (bleveq.Query, error) {
	if len(b.Must) == 0 && len(b.Should) == 0 && len(b.MustNot) == 0 {
		return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
			Detail("empty boolean query").
			Build()
	}

	q := bleve.NewBooleanQuery()
	for _, n := range b.Must {
		sub, err := compile(s, n, defaults)
		if err != nil {
			return nil, err
		}
		q.AddMust(sub)
	}
	for _, n := range b.Should {
		sub, err := compile(s, n, defaults)
		if err != nil {
			return nil, err
		}
		q.AddShould(sub)
	}
	for _, n := range b.MustNot {
		sub, err := compile(s, n, defaults)
		if err != nil {
			return nil, err
		}
		q.AddMustNot(sub)
	}
	// A pure negation needs a positive clause to subtract from.
	if len(b.Must) == 0 && len(b.Should) == 0 {
		q.AddMust(bleve.NewMatchAllQuery())
	}
	return q, nil
}

// resolveField looks up a (possibly dotted) field path. A dotted path is
// valid only when its root is a schemaless JSON field.
func resolveField(s *schema.Schema, name string) (schema.Field, error) {
	if f, ok := s.Field(name); ok {
		return f, nil
	}
	if root, _, found := strings.Cut(name, "."); found {
		if f, ok := s.Field(root); ok && f.Type == searchbridge.FieldTypeJSON {
			return f, nil
		}
	}
	return schema.Field{}, errors.UnknownField(errors.PhaseQuery, name)
}

// overDefaults expands an unscoped clause across the default fields.
func overDefaults(s *schema.Schema, defaults []string, build func(field string) (bleveq.Query, error)) (bleveq.Query, error) {
	if len(defaults) == 0 {
		for _, f := range s.Fields() {
			if f.Indexed && f.Type == searchbridge.FieldTypeText {
				defaults = append(defaults, f.Name)
			}
		}
		if len(defaults) == 0 {
			return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
				Detail("no default fields: schema has no indexed text field").
				Build()
		}
	}

	if len(defaults) == 1 {
		return build(defaults[0])
	}
	q := bleve.NewBooleanQuery()
	for _, field := range defaults {
		sub, err := build(field)
		if err != nil {
			return nil, err
		}
		q.AddShould(sub)
	}
	return q, nil
}

func parseDateBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
