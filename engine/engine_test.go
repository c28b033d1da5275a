package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/query"
	"github.com/emberai/search-bridge/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build([]schema.Field{
		{Name: "title", Type: searchbridge.FieldTypeText, Stored: true, Indexed: true},
		{Name: "body", Type: searchbridge.FieldTypeText, Indexed: true},
		{Name: "year", Type: searchbridge.FieldTypeUnsigned, Stored: true, Indexed: true, Fast: true},
		{Name: "published", Type: searchbridge.FieldTypeDate, Stored: true, Indexed: true},
		{Name: "category", Type: searchbridge.FieldTypeFacet, Stored: true, Indexed: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

func openTestIndex(t *testing.T, path string) *Index {
	t.Helper()
	ix, err := OpenOrCreate(path, testSchema(t))
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func addDoc(t *testing.T, w *Writer, title string, year uint64) string {
	t.Helper()
	_, id, err := w.AddDocument(map[string][]any{
		"title": {title},
		"year":  {year},
	})
	if err != nil {
		t.Fatalf("AddDocument(%q): %v", title, err)
	}
	return id
}

func searcherFor(t *testing.T, ix *Index) *Searcher {
	t.Helper()
	r, err := NewReader(ix, ReloadManual)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	s, err := r.Searcher()
	if err != nil {
		t.Fatalf("Searcher: %v", err)
	}
	return s
}

func TestIndexRoundtrip(t *testing.T) {
	ix := openTestIndex(t, filepath.Join(t.TempDir(), "idx"))

	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	pub := time.Date(1937, 2, 1, 0, 0, 0, 0, time.UTC)
	_, id, err := w.AddDocument(map[string][]any{
		"title":     {"Of Mice and Men"},
		"body":      {"a tale of two drifters"},
		"year":      {uint64(1937)},
		"published": {pub},
		"category":  {"/fiction/classics"},
	})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	meta, err := w.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if meta.Docs != 1 {
		t.Fatalf("committed %d docs, want 1", meta.Docs)
	}

	sr := searcherFor(t, ix)
	q, err := query.Parse(ix.Schema(), "title:mice")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := sr.Search(context.Background(), q, SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 1 || len(res.Hits) != 1 {
		t.Fatalf("got %d hits (total %d), want 1", len(res.Hits), res.Total)
	}
	if res.Hits[0].DocID != id {
		t.Fatalf("hit %s, want %s", res.Hits[0].DocID, id)
	}

	doc, err := sr.Doc(context.Background(), id)
	if err != nil {
		t.Fatalf("Doc: %v", err)
	}
	if got := doc["title"]; len(got) != 1 || got[0] != "Of Mice and Men" {
		t.Fatalf("stored title = %v", got)
	}
	if got := doc["year"]; len(got) != 1 || got[0] != uint64(1937) {
		t.Fatalf("stored year = %v", got)
	}
	if got := doc["published"]; len(got) != 1 || !got[0].(time.Time).Equal(pub) {
		t.Fatalf("stored published = %v", got)
	}
	if got := doc["category"]; len(got) != 1 || got[0] != "/fiction/classics" {
		t.Fatalf("stored category = %v", got)
	}
	if _, ok := doc["body"]; ok {
		t.Fatal("body is not stored, must be absent")
	}
}

func TestMultiValueOrderPreserved(t *testing.T) {
	ix := openTestIndex(t, "")

	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	_, id, err := w.AddDocument(map[string][]any{
		"title": {"first", "second", "third"},
	})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if _, err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	sr := searcherFor(t, ix)
	doc, err := sr.Doc(context.Background(), id)
	if err != nil {
		t.Fatalf("Doc: %v", err)
	}
	want := []any{"first", "second", "third"}
	got := doc["title"]
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriterExclusivity(t *testing.T) {
	ix := openTestIndex(t, filepath.Join(t.TempDir(), "idx"))

	w1, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("first NewWriter: %v", err)
	}
	if _, err := NewWriter(ix, 0); !errors.IsKind(err, errors.KindWriterAlreadyOpen) {
		t.Fatalf("second writer: got %v, want writer_already_open", err)
	}
	if err := w1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	w2, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("writer after release: %v", err)
	}
	w2.Close()
}

func TestSchemaMismatchOnReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	ix := openTestIndex(t, dir)
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	other, err := schema.Build([]schema.Field{
		{Name: "name", Type: searchbridge.FieldTypeText, Stored: true, Indexed: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := OpenOrCreate(dir, other); !errors.IsKind(err, errors.KindSchemaMismatch) {
		t.Fatalf("got %v, want schema_mismatch", err)
	}

	// The persisted schema still opens the index.
	again, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	again.Close()
}

func TestDeleteDocuments(t *testing.T) {
	ix := openTestIndex(t, "")

	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	addDoc(t, w, "of mice and men", 1937)
	addDoc(t, w, "east of eden", 1952)
	if _, err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := w.DeleteDocuments("year", searchbridge.Uint(1937)); err != nil {
		t.Fatalf("DeleteDocuments: %v", err)
	}
	if _, err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit after delete: %v", err)
	}

	sr := searcherFor(t, ix)
	n, err := sr.NumDocs()
	if err != nil {
		t.Fatalf("NumDocs: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d docs, want 1", n)
	}
}

func TestDeleteTypeChecked(t *testing.T) {
	ix := openTestIndex(t, "")
	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.DeleteDocuments("year", searchbridge.Text("1937")); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Fatalf("got %v, want type_mismatch", err)
	}
	if _, err := w.DeleteDocuments("missing", searchbridge.Uint(1)); !errors.IsKind(err, errors.KindUnknownField) {
		t.Fatalf("got %v, want unknown_field", err)
	}
}

func TestRollbackDiscardsBuffered(t *testing.T) {
	ix := openTestIndex(t, "")

	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	addDoc(t, w, "never committed", 2000)
	if _, err := w.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	meta, err := w.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if meta.Docs != 0 {
		t.Fatalf("committed %d docs after rollback, want 0", meta.Docs)
	}

	sr := searcherFor(t, ix)
	n, err := sr.NumDocs()
	if err != nil {
		t.Fatalf("NumDocs: %v", err)
	}
	if n != 0 {
		t.Fatalf("got %d docs, want 0", n)
	}
}

func TestDocFreq(t *testing.T) {
	ix := openTestIndex(t, "")

	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	addDoc(t, w, "of mice and men", 1937)
	addDoc(t, w, "the mice next door", 1950)
	addDoc(t, w, "east of eden", 1952)
	if _, err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	sr := searcherFor(t, ix)
	n, err := sr.DocFreq(context.Background(), "title", searchbridge.Text("mice"))
	if err != nil {
		t.Fatalf("DocFreq: %v", err)
	}
	if n != 2 {
		t.Fatalf("doc freq = %d, want 2", n)
	}
}

func TestOrderBy(t *testing.T) {
	ix := openTestIndex(t, "")

	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	oldID := addDoc(t, w, "of mice and men", 1937)
	newID := addDoc(t, w, "east of eden", 1952)
	if _, err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	sr := searcherFor(t, ix)
	q, err := query.Parse(ix.Schema(), "year:[1900 TO 2000]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	res, err := sr.Search(context.Background(), q, SearchOptions{Limit: 10, OrderBy: "year", Descending: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 2 || res.Hits[0].DocID != newID || res.Hits[1].DocID != oldID {
		t.Fatalf("descending order wrong: %+v", res.Hits)
	}

	res, err = sr.Search(context.Background(), q, SearchOptions{Limit: 10, OrderBy: "year"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 2 || res.Hits[0].DocID != oldID {
		t.Fatalf("ascending order wrong: %+v", res.Hits)
	}

	// order_by is rejected on fields without fast values.
	if _, err := sr.Search(context.Background(), q, SearchOptions{OrderBy: "title"}); !errors.IsKind(err, errors.KindUnsupportedQuery) {
		t.Fatalf("got %v, want unsupported_query_for_field", err)
	}
}

func TestSearchOffset(t *testing.T) {
	ix := openTestIndex(t, "")

	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	for year := uint64(1930); year < 1940; year++ {
		addDoc(t, w, "annual report", year)
	}
	if _, err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	sr := searcherFor(t, ix)
	q, err := query.Parse(ix.Schema(), "year:[1930 TO 1940}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := sr.Search(context.Background(), q, SearchOptions{Limit: 3, Offset: 8, OrderBy: "year"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 10 {
		t.Fatalf("total = %d, want 10", res.Total)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("got %d hits at offset 8, want 2", len(res.Hits))
	}
}

func TestInMemoryIndex(t *testing.T) {
	ix := openTestIndex(t, "")
	if !ix.InMemory() {
		t.Fatal("expected in-memory index")
	}
	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	addDoc(t, w, "volatile", 2024)
	if _, err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	w.Close()

	sr := searcherFor(t, ix)
	n, err := sr.NumDocs()
	if err != nil {
		t.Fatalf("NumDocs: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d docs, want 1", n)
	}
}

func TestReaderReloadGeneration(t *testing.T) {
	ix := openTestIndex(t, "")
	r, err := NewReader(ix, ReloadManual)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	s1, err := r.Searcher()
	if err != nil {
		t.Fatalf("Searcher: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	s2, err := r.Searcher()
	if err != nil {
		t.Fatalf("Searcher: %v", err)
	}
	if s2.Generation() <= s1.Generation() {
		t.Fatalf("generation did not advance: %d -> %d", s1.Generation(), s2.Generation())
	}
}

func TestReaderStaleOnCommit(t *testing.T) {
	ix := openTestIndex(t, filepath.Join(t.TempDir(), "idx"))

	r, err := NewReader(ix, ReloadOnCommit)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if r.Stale() {
		t.Fatal("fresh reader must not be stale")
	}

	w, err := NewWriter(ix, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()
	addDoc(t, w, "of mice and men", 1937)
	if _, err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !r.Stale() {
		select {
		case <-deadline:
			t.Fatal("reader never noticed the commit")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if r.Stale() {
		t.Fatal("reload must clear staleness")
	}
}

func TestClosedIndexRejectsEverything(t *testing.T) {
	ix := openTestIndex(t, "")
	sr := searcherFor(t, ix)
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := NewWriter(ix, 0); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("NewWriter on closed index: got %v, want closed", err)
	}
	if _, err := sr.NumDocs(); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("NumDocs on closed index: got %v, want closed", err)
	}
}
