package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/blevesearch/bleve/v2"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/query"
	"github.com/emberai/search-bridge/schema"
)

// Hit is one search result.
type Hit struct {
	DocID string
	Score float64
}

// Result is the outcome of a search.
type Result struct {
	Hits  []Hit
	Total uint64
	Took  time.Duration
}

// SearchOptions tune a single search call.
type SearchOptions struct {
	// Limit caps the number of hits returned. Zero means 10.
	Limit int
	// Offset skips that many hits from the top of the ranking.
	Offset int
	// OrderBy replaces relevance ranking with a sort on the named
	// field, which must be declared fast and orderable.
	OrderBy string
	// Descending inverts the OrderBy sort. Ignored without OrderBy.
	Descending bool
}

// Searcher executes queries against the state of the index at the
// reader generation it was created from.
type Searcher struct {
	ix  *Index
	gen uint64
}

// Generation returns the reader generation this searcher was built at.
func (s *Searcher) Generation() uint64 { return s.gen }

// Search runs q and returns the ranked hits.
func (s *Searcher) Search(ctx context.Context, q *query.Query, opts SearchOptions) (*Result, error) {
	if err := s.ix.live(); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(q.Native(), limit, opts.Offset, false)
	if opts.OrderBy != "" {
		f, ok := s.ix.schema.Field(opts.OrderBy)
		if !ok {
			return nil, errors.UnknownField(errors.PhaseSearch, opts.OrderBy)
		}
		if !f.Fast || !f.Type.Orderable() {
			return nil, errors.UnsupportedQuery(opts.OrderBy, f.Type.String(),
				"order_by requires a fast, orderable field")
		}
		sort := opts.OrderBy
		if opts.Descending {
			sort = "-" + sort
		}
		req.SortBy([]string{sort})
	}
	res, err := s.ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.ExecFailed(err)
	}
	out := &Result{Total: res.Total, Took: res.Took}
	for _, hit := range res.Hits {
		out.Hits = append(out.Hits, Hit{DocID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// NumDocs returns the number of documents visible to searches.
func (s *Searcher) NumDocs() (uint64, error) {
	if err := s.ix.live(); err != nil {
		return 0, err
	}
	n, err := s.ix.idx.DocCount()
	if err != nil {
		return 0, errors.ExecFailed(err)
	}
	return n, nil
}

// DocFreq returns how many documents contain term in field.
func (s *Searcher) DocFreq(ctx context.Context, field string, term searchbridge.Value) (uint64, error) {
	if err := s.ix.live(); err != nil {
		return 0, err
	}
	f, ok := s.ix.schema.Field(field)
	if !ok {
		return 0, errors.UnknownField(errors.PhaseSearch, field)
	}
	if f.Type != term.Type() {
		return 0, errors.TypeMismatch(errors.PhaseSearch, []string{field},
			term.Type().String(), f.Type.String())
	}
	q, err := query.FromTree(s.ix.schema, query.Term{Field: field, Text: valueText(term)})
	if err != nil {
		return 0, err
	}
	req := bleve.NewSearchRequestOptions(q.Native(), 0, 0, false)
	res, err := s.ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return 0, errors.ExecFailed(err)
	}
	return res.Total, nil
}

// Doc retrieves the stored fields of a document by its identifier in
// host representation, with multi-value order preserved. Fields that
// were not declared stored are absent.
func (s *Searcher) Doc(ctx context.Context, docID string) (map[string][]any, error) {
	if err := s.ix.live(); err != nil {
		return nil, err
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{docID}), 1, 0, false)
	req.Fields = []string{"*"}
	res, err := s.ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.ExecFailed(err)
	}
	if len(res.Hits) == 0 {
		return nil, errors.New(errors.PhaseSearch, errors.KindQueryExecution).
			Detail("document %s not found", docID).Build()
	}
	return s.restore(res.Hits[0].Fields)
}

// restore converts the engine's stored-field view of a document back
// to host values using the schema's declared types.
func (s *Searcher) restore(fields map[string]any) (map[string][]any, error) {
	out := make(map[string][]any)
	for _, f := range s.ix.schema.Fields() {
		if !f.Stored {
			continue
		}
		if f.Type == searchbridge.FieldTypeJSON {
			raw, ok := fields[schema.RawJSONField(f.Name)].(string)
			if !ok {
				continue
			}
			vals, err := restoreJSON(f.Name, raw)
			if err != nil {
				return nil, err
			}
			out[f.Name] = vals
			continue
		}
		stored, ok := fields[f.Name]
		if !ok {
			continue
		}
		var raws []any
		if list, ok := stored.([]any); ok {
			raws = list
		} else {
			raws = []any{stored}
		}
		vals := make([]any, 0, len(raws))
		for _, rv := range raws {
			hv, err := hostValue(f, rv)
			if err != nil {
				return nil, err
			}
			vals = append(vals, hv)
		}
		out[f.Name] = vals
	}
	return out, nil
}

func restoreJSON(field, raw string) ([]any, error) {
	var one map[string]any
	if err := json.Unmarshal([]byte(raw), &one); err == nil {
		return []any{one}, nil
	}
	var many []map[string]any
	if err := json.Unmarshal([]byte(raw), &many); err != nil {
		return nil, errors.New(errors.PhaseSearch, errors.KindIO).
			Cause(err).Path(field).Detail("stored json unreadable").Build()
	}
	vals := make([]any, 0, len(many))
	for _, m := range many {
		vals = append(vals, m)
	}
	return vals, nil
}

// hostValue undoes the engine's stored representation for one value.
// The engine stores every number as float64 and dates, blobs and
// addresses as strings.
func hostValue(f schema.Field, stored any) (any, error) {
	switch f.Type {
	case searchbridge.FieldTypeText, searchbridge.FieldTypeFacet, searchbridge.FieldTypeIP:
		if s, ok := stored.(string); ok {
			return s, nil
		}
	case searchbridge.FieldTypeUnsigned:
		if n, ok := stored.(float64); ok {
			return uint64(n), nil
		}
	case searchbridge.FieldTypeInteger:
		if n, ok := stored.(float64); ok {
			return int64(n), nil
		}
	case searchbridge.FieldTypeFloat:
		if n, ok := stored.(float64); ok {
			return n, nil
		}
	case searchbridge.FieldTypeBoolean:
		if b, ok := stored.(bool); ok {
			return b, nil
		}
	case searchbridge.FieldTypeDate:
		if s, ok := stored.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, errors.New(errors.PhaseSearch, errors.KindTypeMismatch).
					Path(f.Name).Detail("stored date unreadable: %v", err).Build()
			}
			return t.UTC(), nil
		}
	case searchbridge.FieldTypeBytes:
		if s, ok := stored.(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, errors.New(errors.PhaseSearch, errors.KindTypeMismatch).
					Path(f.Name).Detail("stored blob unreadable: %v", err).Build()
			}
			return b, nil
		}
	}
	return nil, errors.TypeMismatch(errors.PhaseSearch, []string{f.Name},
		typeName(stored), f.Type.String())
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	}
	return "unknown"
}
