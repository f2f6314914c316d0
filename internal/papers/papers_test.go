package papers

import (
	"context"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/taarya/taarya/internal/log"
	"github.com/taarya/taarya/internal/testutil"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeRows struct {
	rows []func(dest ...any) error
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}
func (r *fakeRows) Scan(dest ...any) error { return r.rows[r.idx-1](dest...) }
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeDB struct {
	execs    []recordedQuery
	queries  []recordedQuery
	rows     *fakeRows
	countErr error
	count    int64
}

type recordedQuery struct {
	sql  string
	args []any
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, recordedQuery{sql, args})
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.queries = append(db.queries, recordedQuery{sql, args})
	if db.rows == nil {
		return &fakeRows{}, nil
	}
	return db.rows, nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.queries = append(db.queries, recordedQuery{sql, args})
	return fakeRow{scan: func(dest ...any) error {
		if db.countErr != nil {
			return db.countErr
		}
		*dest[0].(*int64) = db.count
		return nil
	}}
}

func newTestStore(t *testing.T, db Querier, dim int) *Store {
	t.Helper()
	g := genkit.Init(context.Background())
	embedder := testutil.NewMockEmbedder(dim).Register(g)
	s, err := New(db, embedder, log.NewNop())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return s
}

func TestIndexUpsertsEachPassage(t *testing.T) {
	db := &fakeDB{}
	store := newTestStore(t, db, VectorDimension)

	passages := []Passage{
		{PaperID: "2024arXiv0001", Title: "Cluster kinematics", ChunkIndex: 0, Content: "first chunk"},
		{PaperID: "2024arXiv0001", Title: "Cluster kinematics", ChunkIndex: 1, Content: "second chunk"},
	}
	if err := store.Index(context.Background(), passages); err != nil {
		t.Fatalf("Index() = %v", err)
	}

	if len(db.execs) != 2 {
		t.Fatalf("execs = %d, want 2", len(db.execs))
	}
	if !strings.Contains(db.execs[0].sql, "ON CONFLICT (paper_id, chunk_index)") {
		t.Errorf("insert is not an upsert: %s", db.execs[0].sql)
	}
	vec, ok := db.execs[0].args[6].(pgvector.Vector)
	if !ok {
		t.Fatalf("embedding arg type %T, want pgvector.Vector", db.execs[0].args[6])
	}
	if len(vec.Slice()) != VectorDimension {
		t.Errorf("embedding dimension = %d, want %d", len(vec.Slice()), VectorDimension)
	}
}

func TestIndexRejectsWrongDimension(t *testing.T) {
	db := &fakeDB{}
	store := newTestStore(t, db, 8) // embedder narrower than the schema

	err := store.Index(context.Background(), []Passage{{PaperID: "p", Content: "x"}})
	if err == nil || !strings.Contains(err.Error(), "dimension") {
		t.Fatalf("Index() = %v, want dimension error", err)
	}
	if len(db.execs) != 0 {
		t.Errorf("wrong-dimension embedding reached the database")
	}
}

func TestIndexEmptyIsNoop(t *testing.T) {
	db := &fakeDB{}
	store := newTestStore(t, db, VectorDimension)

	if err := store.Index(context.Background(), nil); err != nil {
		t.Fatalf("Index(nil) = %v", err)
	}
	if len(db.execs) != 0 {
		t.Errorf("empty index touched the database")
	}
}

func TestSearchReturnsRankedResults(t *testing.T) {
	passageRow := func(paperID string, chunk int, score float64) func(dest ...any) error {
		return func(dest ...any) error {
			*dest[0].(*string) = paperID
			*dest[1].(*string) = "A title"
			*dest[2].(*string) = "Doe et al."
			*dest[4].(*int) = chunk
			*dest[5].(*string) = "passage text"
			*dest[6].(*float64) = score
			return nil
		}
	}
	db := &fakeDB{rows: &fakeRows{rows: []func(...any) error{
		passageRow("paperA", 0, 0.91),
		passageRow("paperB", 3, 0.74),
	}}}
	store := newTestStore(t, db, VectorDimension)

	results, err := store.Search(context.Background(), "open cluster ages", 2)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].PaperID != "paperA" || results[0].Score != 0.91 {
		t.Errorf("top result = %+v", results[0])
	}
	if !strings.Contains(db.queries[0].sql, "ORDER BY embedding <=>") {
		t.Errorf("search not ordered by vector distance: %s", db.queries[0].sql)
	}
	if db.queries[0].args[1] != 2 {
		t.Errorf("limit arg = %v, want 2", db.queries[0].args[1])
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	store := newTestStore(t, &fakeDB{}, VectorDimension)
	if _, err := store.Search(context.Background(), "", 5); err == nil {
		t.Fatal("Search(empty) = nil, want error")
	}
}

func TestStats(t *testing.T) {
	db := &fakeDB{count: 1234}
	store := newTestStore(t, db, VectorDimension)

	stats := store.Stats(context.Background())
	if stats.Status != "green" || stats.PointsCount != 1234 || !stats.Exists {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestStatsDegradesOnFailure(t *testing.T) {
	db := &fakeDB{countErr: context.DeadlineExceeded}
	store := newTestStore(t, db, VectorDimension)

	stats := store.Stats(context.Background())
	if stats.Status != "unavailable" || stats.Exists {
		t.Errorf("Stats() = %+v, want unavailable", stats)
	}
}
