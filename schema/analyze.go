package schema

import (
	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
)

// Token is one term produced by a field's analyzer, with its position in
// the token stream and byte offsets into the source text.
type Token struct {
	Text     string
	Position int
	Start    int
	End      int
}

// Analyze runs a text field's analyzer over text and returns the token
// stream. Useful for debugging why a term does or does not match.
func (s *Schema) Analyze(field, text string) ([]Token, error) {
	f, ok := s.Field(field)
	if !ok {
		return nil, errors.UnknownField(errors.PhaseSchema, field)
	}
	if f.Type != searchbridge.FieldTypeText {
		return nil, errors.New(errors.PhaseSchema, errors.KindTypeMismatch).
			Path(field).
			FieldType(f.Type.String()).
			Detail("only text fields have analyzers").
			Build()
	}

	name, ok := s.analyzers[field]
	if !ok {
		return nil, errors.SchemaInvalid(field, "field has no analyzer")
	}
	analyzer := s.mapping.AnalyzerNamed(name)
	if analyzer == nil {
		return nil, errors.SchemaInvalid(field, "analyzer "+name+" not registered")
	}

	stream := analyzer.Analyze([]byte(text))
	tokens := make([]Token, 0, len(stream))
	for _, t := range stream {
		tokens = append(tokens, Token{
			Text:     string(t.Term),
			Position: t.Position,
			Start:    t.Start,
			End:      t.End,
		})
	}
	return tokens, nil
}
