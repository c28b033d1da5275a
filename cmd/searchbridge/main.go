package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/engine"
	"github.com/emberai/search-bridge/schema"
	"github.com/emberai/search-bridge/session"
)

func main() {
	var (
		indexDir    = flag.String("index", "", "Path to index directory")
		schemaFile  = flag.String("schema", "", "Path to schema JSON (required on first create)")
		addFile     = flag.String("add", "", "JSON file with documents to index (array of objects)")
		queryStr    = flag.String("query", "", "Query to execute")
		fieldsStr   = flag.String("fields", "", "Default fields for unfielded terms (comma-separated)")
		limit       = flag.Int("limit", 10, "Maximum hits to return")
		offset      = flag.Int("offset", 0, "Hits to skip from the top")
		orderBy     = flag.String("order", "", "Sort by this fast field instead of relevance")
		desc        = flag.Bool("desc", false, "Invert the -order sort")
		analyzeFld  = flag.String("analyze", "", "Show analyzer tokens for this field (with -text)")
		analyzeTxt  = flag.String("text", "", "Text to analyze")
		stats       = flag.Bool("stats", false, "Print document count and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *indexDir == "" {
		fmt.Fprintln(os.Stderr, "Usage: searchbridge -index <dir> -schema <schema.json> -add <docs.json>")
		fmt.Fprintln(os.Stderr, "       searchbridge -index <dir> -query <query> [-limit n] [-order field]")
		fmt.Fprintln(os.Stderr, "       searchbridge -index <dir> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*indexDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*indexDir, *schemaFile, *addFile, *queryStr, *fieldsStr, *analyzeFld, *analyzeTxt, *limit, *offset, *orderBy, *desc, *stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(indexDir, schemaFile, addFile, queryStr, fieldsStr, analyzeFld, analyzeTxt string, limit, offset int, orderBy string, desc, stats bool) error {
	ctx := context.Background()

	s, err := session.New(session.WithQueryCache(0))
	if err != nil {
		return err
	}
	defer s.Close()

	idx, err := openIndex(s, indexDir, schemaFile)
	if err != nil {
		return err
	}

	if analyzeFld != "" {
		toks, err := s.Analyze(idx, analyzeFld, analyzeTxt)
		if err != nil {
			return err
		}
		for _, tok := range toks {
			fmt.Printf("  %-20s pos=%d [%d:%d]\n", tok.Text, tok.Position, tok.Start, tok.End)
		}
		return nil
	}

	if addFile != "" {
		n, err := addDocuments(ctx, s, idx, addFile)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d documents\n", n)
	}

	rdr, err := s.Reader(idx)
	if err != nil {
		return err
	}
	sr, err := s.Searcher(rdr)
	if err != nil {
		return err
	}

	if stats {
		n, err := s.NumDocs(sr)
		if err != nil {
			return err
		}
		fmt.Printf("Documents: %d\n", n)
		return nil
	}

	if queryStr == "" {
		return nil
	}

	var defaults []string
	if fieldsStr != "" {
		defaults = strings.Split(fieldsStr, ",")
	}
	q, err := s.ParseQuery(idx, queryStr, defaults...)
	if err != nil {
		return err
	}

	res, err := s.Search(ctx, sr, q, engine.SearchOptions{
		Limit:      limit,
		Offset:     offset,
		OrderBy:    orderBy,
		Descending: desc,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Total: %d (%s)\n", res.Total, res.Took)
	for i, hit := range res.Hits {
		fmt.Printf("%2d. %s  score=%.4f\n", offset+i+1, hit.DocID, hit.Score)
		docH, err := s.Doc(ctx, sr, hit.DocID)
		if err != nil {
			continue
		}
		fields, err := s.DocumentFields(docH)
		if err == nil {
			for name, vals := range fields {
				fmt.Printf("      %s: %v\n", name, vals)
			}
		}
		s.Release(docH)
	}
	return nil
}

func openIndex(s *session.Session, indexDir, schemaFile string) (uint64, error) {
	if schemaFile == "" {
		return s.OpenIndex(indexDir)
	}
	data, err := os.ReadFile(schemaFile)
	if err != nil {
		return 0, fmt.Errorf("read schema: %w", err)
	}
	var fields []schema.Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return 0, fmt.Errorf("decode schema: %w", err)
	}
	return s.OpenOrCreateIndex(indexDir, fields)
}

// addDocuments indexes a JSON array of objects. Scalar values become
// single-value fields, arrays keep their order as multi-value fields.
func addDocuments(ctx context.Context, s *session.Session, idx uint64, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read documents: %w", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return 0, fmt.Errorf("decode documents: %w", err)
	}

	fields, err := s.SchemaFields(idx)
	if err != nil {
		return 0, err
	}
	types := make(map[string]searchbridge.FieldType, len(fields))
	for _, f := range fields {
		types[f.Name] = f.Type
	}

	w, err := s.Writer(idx, 0)
	if err != nil {
		return 0, err
	}
	defer s.Release(w)

	for i, doc := range docs {
		if _, err := s.AddDocument(w, hostDocument(doc, types)); err != nil {
			return 0, fmt.Errorf("document %d: %w", i, err)
		}
	}
	if _, err := s.Commit(ctx, w); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// hostDocument shapes a decoded JSON object into the bridge's
// multi-value document form. JSON has only float64 numbers, so integer
// fields get their values coerced here; the bridge itself never infers.
func hostDocument(doc map[string]any, types map[string]searchbridge.FieldType) map[string][]any {
	out := make(map[string][]any, len(doc))
	for name, v := range doc {
		var vals []any
		if list, ok := v.([]any); ok {
			vals = list
		} else {
			vals = []any{v}
		}
		for i, val := range vals {
			n, ok := val.(float64)
			if !ok {
				continue
			}
			switch types[name] {
			case searchbridge.FieldTypeUnsigned:
				vals[i] = uint64(n)
			case searchbridge.FieldTypeInteger:
				vals[i] = int64(n)
			}
		}
		out[name] = vals
	}
	return out
}
