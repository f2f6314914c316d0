package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/taarya/taarya/internal/log"
)

// newOfflineStore builds a store over a driver that never connects.
// Driver construction is lazy in the neo4j driver, so paths that fail
// before issuing a query are testable without a server.
func newOfflineStore(t *testing.T) *Store {
	t.Helper()
	driver, err := neo4j.NewDriverWithContext("bolt://localhost:7687", neo4j.NoAuth())
	if err != nil {
		t.Fatalf("NewDriverWithContext() = %v", err)
	}
	t.Cleanup(func() { _ = driver.Close(context.Background()) })

	s, err := New(driver, log.NewNop())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return s
}

func TestNewRequiresDriver(t *testing.T) {
	if _, err := New(nil, log.NewNop()); err == nil {
		t.Fatal("New(nil) = nil error")
	}
}

func TestTraverseRejectsUnknownRelation(t *testing.T) {
	s := newOfflineStore(t)

	_, err := s.Traverse(context.Background(), "12345", "FRIENDS_WITH", 2)
	if !errors.Is(err, ErrUnknownRelation) {
		t.Fatalf("Traverse() = %v, want ErrUnknownRelation", err)
	}
}

func TestRecordsToPapers(t *testing.T) {
	records := []*neo4j.Record{
		{
			Keys:   []string{"paper_id", "title", "year"},
			Values: []any{"2023A&A...680A..75C", "Pleiades membership from Gaia DR3", int64(2023)},
		},
		{
			// Year missing for preprints without a publication date.
			Keys:   []string{"paper_id", "title", "year"},
			Values: []any{"arXiv:2301.00001", "Cluster dissolution timescales", nil},
		},
	}

	papers := recordsToPapers(records)
	if len(papers) != 2 {
		t.Fatalf("len(papers) = %d, want 2", len(papers))
	}
	if papers[0].PaperID != "2023A&A...680A..75C" || papers[0].Year != 2023 {
		t.Errorf("papers[0] = %+v", papers[0])
	}
	if papers[1].Title != "Cluster dissolution timescales" || papers[1].Year != 0 {
		t.Errorf("papers[1] = %+v", papers[1])
	}
}

func TestRecordInt(t *testing.T) {
	rec := &neo4j.Record{
		Keys:   []string{"count", "missing_value", "wrong_type"},
		Values: []any{int64(42), nil, "many"},
	}

	tests := []struct {
		key    string
		want   int64
		wantOK bool
	}{
		{"count", 42, true},
		{"missing_value", 0, false},
		{"wrong_type", 0, false},
		{"absent_key", 0, false},
	}
	for _, tt := range tests {
		got, ok := recordInt(rec, tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("recordInt(%q) = %d, %v; want %d, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestClampHops(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{3, 3},
		{4, 3},
		{100, 3},
	}
	for _, tt := range tests {
		if got := ClampHops(tt.in); got != tt.want {
			t.Errorf("ClampHops(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
