package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/ngram"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
)

// Analyzer names accepted on text fields.
const (
	AnalyzerStandard  = "standard"
	AnalyzerSimple    = "simple"
	AnalyzerKeyword   = "keyword"
	AnalyzerNgram     = "ngram"
	AnalyzerEdgeNgram = "edge_ngram"
)

// Internal names for analyzers registered on the mapping.
const (
	ngramAnalyzerName     = "bridge_ngram"
	edgeNgramAnalyzerName = "bridge_edge_ngram"
	ngramFilterName       = "bridge_ngram_filter"
	edgeNgramFilterName   = "bridge_edge_ngram_filter"
)

// rawJSONPrefix prefixes the hidden stored companion of a JSON field. User
// field names cannot start with an underscore, so it cannot collide.
const rawJSONPrefix = "_json_"

// RawJSONField returns the engine-side name of the stored companion field
// holding a JSON field's canonical encoding.
func RawJSONField(name string) string { return rawJSONPrefix + name }

var fieldNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\-]*$`)

// Field is one declarative field descriptor.
type Field struct {
	Name     string                 `json:"name"`
	Type     searchbridge.FieldType `json:"type"`
	Bits     uint8                  `json:"bits,omitempty"`
	Stored   bool                   `json:"stored"`
	Indexed  bool                   `json:"indexed"`
	Fast     bool                   `json:"fast,omitempty"`
	Analyzer string                 `json:"analyzer,omitempty"`
}

// ValueType returns the expected type at conversion sites for this field.
func (f Field) ValueType() searchbridge.ValueType {
	return searchbridge.ValueType{Kind: f.Type, Bits: f.Bits}
}

// Schema is the typed field contract an index enforces for every document.
// Immutable once built; an index's schema never changes after creation.
type Schema struct {
	fields    []Field
	byName    map[string]int
	mapping   *mapping.IndexMappingImpl
	analyzers map[string]string
}

// Build validates the field descriptors and constructs the schema together
// with the engine's index mapping. Construction is all-or-nothing: any
// invalid descriptor aborts the whole build.
func Build(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.SchemaInvalid("", "schema needs at least one field")
	}

	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if err := validate(f); err != nil {
			return nil, err
		}
		if _, dup := byName[f.Name]; dup {
			return nil, errors.SchemaInvalid(f.Name, "duplicate field name")
		}
		byName[f.Name] = i
	}

	s := &Schema{
		fields:    append([]Field(nil), fields...),
		byName:    byName,
		analyzers: make(map[string]string),
	}
	if err := s.buildMapping(); err != nil {
		return nil, err
	}
	return s, nil
}

func validate(f Field) error {
	if !fieldNameRE.MatchString(f.Name) {
		return errors.SchemaInvalid(f.Name, "field name must start with a letter and contain only letters, digits, '_' or '-'")
	}
	switch f.Type {
	case searchbridge.FieldTypeText, searchbridge.FieldTypeUnsigned,
		searchbridge.FieldTypeInteger, searchbridge.FieldTypeFloat,
		searchbridge.FieldTypeBoolean, searchbridge.FieldTypeDate,
		searchbridge.FieldTypeFacet, searchbridge.FieldTypeBytes,
		searchbridge.FieldTypeJSON, searchbridge.FieldTypeIP:
	default:
		return errors.SchemaInvalid(f.Name, "unknown field type")
	}
	if !f.Stored && !f.Indexed {
		return errors.EmptySchemaField(f.Name)
	}
	if f.Fast && !f.Type.FastCapable() {
		return errors.SchemaInvalid(f.Name, "fast access requires a columnar-capable type, not "+f.Type.String())
	}
	if f.Bits != 0 {
		if f.Type != searchbridge.FieldTypeUnsigned && f.Type != searchbridge.FieldTypeInteger {
			return errors.SchemaInvalid(f.Name, "bit width applies only to integer types")
		}
		switch f.Bits {
		case 8, 16, 32, 64:
		default:
			return errors.SchemaInvalid(f.Name, "bit width must be 8, 16, 32 or 64")
		}
	}
	if f.Analyzer != "" {
		if f.Type != searchbridge.FieldTypeText {
			return errors.SchemaInvalid(f.Name, "analyzer applies only to text fields")
		}
		switch f.Analyzer {
		case AnalyzerStandard, AnalyzerSimple, AnalyzerKeyword, AnalyzerNgram, AnalyzerEdgeNgram:
		default:
			return errors.SchemaInvalid(f.Name, "unknown analyzer "+f.Analyzer)
		}
	}
	return nil
}

// Field returns the descriptor for name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields returns the ordered field descriptors.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Mapping returns the engine index mapping built from this schema.
func (s *Schema) Mapping() mapping.IndexMapping { return s.mapping }

// Equal reports whether two schemas declare the same fields in the same
// order with the same options.
func (s *Schema) Equal(other *Schema) bool {
	if other == nil || len(s.fields) != len(other.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

// Fingerprint returns a stable digest of the field descriptors. Two schemas
// have equal fingerprints iff they are Equal.
func (s *Schema) Fingerprint() string {
	data, _ := json.Marshal(s.fields)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// EncodeJSON serializes the field descriptors for persistence beside the
// index.
func (s *Schema) EncodeJSON() ([]byte, error) {
	return json.MarshalIndent(s.fields, "", "  ")
}

// DecodeJSON rebuilds a schema from its persisted descriptor list.
func DecodeJSON(data []byte) (*Schema, error) {
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(errors.PhaseSchema, errors.KindSchemaError, err, "decode persisted schema")
	}
	return Build(fields)
}

func (s *Schema) buildMapping() error {
	im := mapping.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	doc := mapping.NewDocumentStaticMapping()

	needNgram, needEdge := false, false
	for _, f := range s.fields {
		if f.Type == searchbridge.FieldTypeText {
			switch f.Analyzer {
			case AnalyzerNgram:
				needNgram = true
			case AnalyzerEdgeNgram:
				needEdge = true
			}
		}
	}
	if needNgram {
		if err := registerNgram(im, ngramFilterName, ngramAnalyzerName, map[string]interface{}{
			"type": ngram.Name,
			"min":  2.0,
			"max":  3.0,
		}); err != nil {
			return err
		}
	}
	if needEdge {
		if err := registerNgram(im, edgeNgramFilterName, edgeNgramAnalyzerName, map[string]interface{}{
			"type": edgengram.Name,
			"edge": "front",
			"min":  2.0,
			"max":  3.0,
		}); err != nil {
			return err
		}
	}

	for _, f := range s.fields {
		switch f.Type {
		case searchbridge.FieldTypeText:
			fm := mapping.NewTextFieldMapping()
			fm.Analyzer = s.resolveAnalyzer(f)
			applyOptions(fm, f)
			doc.AddFieldMappingsAt(f.Name, fm)
			s.analyzers[f.Name] = fm.Analyzer

		case searchbridge.FieldTypeUnsigned, searchbridge.FieldTypeInteger, searchbridge.FieldTypeFloat:
			fm := mapping.NewNumericFieldMapping()
			applyOptions(fm, f)
			doc.AddFieldMappingsAt(f.Name, fm)

		case searchbridge.FieldTypeBoolean:
			fm := mapping.NewBooleanFieldMapping()
			applyOptions(fm, f)
			doc.AddFieldMappingsAt(f.Name, fm)

		case searchbridge.FieldTypeDate:
			fm := mapping.NewDateTimeFieldMapping()
			applyOptions(fm, f)
			doc.AddFieldMappingsAt(f.Name, fm)

		case searchbridge.FieldTypeFacet, searchbridge.FieldTypeBytes:
			// Whole-path and whole-blob terms; no tokenization.
			fm := mapping.NewTextFieldMapping()
			fm.Analyzer = keyword.Name
			applyOptions(fm, f)
			doc.AddFieldMappingsAt(f.Name, fm)

		case searchbridge.FieldTypeIP:
			fm := mapping.NewIPFieldMapping()
			applyOptions(fm, f)
			doc.AddFieldMappingsAt(f.Name, fm)

		case searchbridge.FieldTypeJSON:
			sub := mapping.NewDocumentMapping()
			sub.Dynamic = f.Indexed
			doc.AddSubDocumentMapping(f.Name, sub)
			if f.Stored {
				raw := mapping.NewTextFieldMapping()
				raw.Store = true
				raw.Index = false
				raw.IncludeInAll = false
				doc.AddFieldMappingsAt(RawJSONField(f.Name), raw)
			}
		}
	}

	im.DefaultMapping = doc
	if err := im.Validate(); err != nil {
		return errors.Wrap(errors.PhaseSchema, errors.KindSchemaError, err, "engine rejected mapping")
	}
	s.mapping = im
	return nil
}

func (s *Schema) resolveAnalyzer(f Field) string {
	switch f.Analyzer {
	case "", AnalyzerStandard:
		return standard.Name
	case AnalyzerSimple:
		return simple.Name
	case AnalyzerKeyword:
		return keyword.Name
	case AnalyzerNgram:
		return ngramAnalyzerName
	case AnalyzerEdgeNgram:
		return edgeNgramAnalyzerName
	}
	return standard.Name
}

func applyOptions(fm *mapping.FieldMapping, f Field) {
	fm.Store = f.Stored
	fm.Index = f.Indexed
	fm.DocValues = f.Fast
	fm.IncludeInAll = false
	fm.IncludeTermVectors = f.Type == searchbridge.FieldTypeText && f.Indexed
}

func registerNgram(im *mapping.IndexMappingImpl, filterName, analyzerName string, filterConfig map[string]interface{}) error {
	if err := im.AddCustomTokenFilter(filterName, filterConfig); err != nil {
		return errors.Wrap(errors.PhaseSchema, errors.KindSchemaError, err, "register token filter")
	}
	err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			filterName,
		},
	})
	if err != nil {
		return errors.Wrap(errors.PhaseSchema, errors.KindSchemaError, err, "register analyzer")
	}
	return nil
}
