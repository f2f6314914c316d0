package catalog

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taarya/taarya/internal/log"
)

// fakeRow scripts a single-row response.
type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeRows scripts a multi-row response for pgx.Rows.
type fakeRows struct {
	rows []func(dest ...any) error
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
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

// fakeDB records queries and replays scripted responses in order.
type fakeDB struct {
	queries []recordedQuery

	rowResponses  []fakeRow
	rowsResponses []*fakeRows
}

type recordedQuery struct {
	sql  string
	args []any
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.queries = append(db.queries, recordedQuery{sql, args})
	if len(db.rowResponses) == 0 {
		return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
	}
	row := db.rowResponses[0]
	db.rowResponses = db.rowResponses[1:]
	return row
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.queries = append(db.queries, recordedQuery{sql, args})
	if len(db.rowsResponses) == 0 {
		return &fakeRows{}, nil
	}
	rows := db.rowsResponses[0]
	db.rowsResponses = db.rowsResponses[1:]
	return rows, nil
}

func countRow(n int64) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*int64) = n
		return nil
	}}
}

// starRow scripts one catalog row; dist < 0 means no distance column.
func starRow(sourceID int64, ra, dec, dist float64) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*int64) = sourceID
		*dest[1].(*float64) = ra
		*dest[2].(*float64) = dec
		*dest[9].(*string) = "gaia_dr3"
		if len(dest) > 10 {
			d := dist
			*dest[10].(**float64) = &d
		}
		return nil
	}
}

func newStore(t *testing.T, db Querier) *Store {
	t.Helper()
	s, err := New(db, log.NewNop())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return s
}

func TestConeSearchValidationBeforeSQL(t *testing.T) {
	tests := []struct {
		name            string
		ra, dec, radius float64
		limit           int
		field           string
	}{
		{"ra too large", 360, 0, 1, 10, "ra"},
		{"ra negative", -1, 0, 1, 10, "ra"},
		{"dec too large", 45, 91, 1, 10, "dec"},
		{"dec too small", 45, -90.5, 1, 10, "dec"},
		{"zero radius", 45, 0, 0, 10, "radius"},
		{"radius too large", 45, 0, 11, 10, "radius"},
		{"negative limit", 45, 0, 1, -5, "limit"},
		{"limit too large", 45, 0, 1, 2000, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{}
			store := newStore(t, db)

			_, _, err := store.ConeSearch(context.Background(), tt.ra, tt.dec, tt.radius, tt.limit)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ConeSearch() = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
			if len(db.queries) != 0 {
				t.Errorf("validation failure reached the database: %d queries", len(db.queries))
			}
		})
	}
}

func TestConeSearchReturnsCountAndStars(t *testing.T) {
	db := &fakeDB{
		rowResponses: []fakeRow{countRow(42)},
		rowsResponses: []*fakeRows{{rows: []func(...any) error{
			starRow(100001, 45.001, 0.1, 0.001),
			starRow(100002, 45.002, 0.1, 0.002),
		}}},
	}
	store := newStore(t, db)

	stars, count, err := store.ConeSearch(context.Background(), 45, 0.1, 0.5, 2)
	if err != nil {
		t.Fatalf("ConeSearch() = %v", err)
	}
	if count != 42 {
		t.Errorf("count = %d, want 42 (pre-truncation total)", count)
	}
	if len(stars) != 2 {
		t.Fatalf("len(stars) = %d, want 2", len(stars))
	}
	if stars[0].SourceID != 100001 || stars[1].SourceID != 100002 {
		t.Errorf("star order = %d, %d", stars[0].SourceID, stars[1].SourceID)
	}
	if stars[0].AngularDistance == nil || *stars[0].AngularDistance != 0.001 {
		t.Errorf("angular distance not populated: %v", stars[0].AngularDistance)
	}

	// count query first, then the ordered fetch
	if len(db.queries) != 2 {
		t.Fatalf("query count = %d, want 2", len(db.queries))
	}
	if !strings.Contains(db.queries[0].sql, "COUNT(*)") {
		t.Errorf("first query is not the count: %s", db.queries[0].sql)
	}
	fetch := db.queries[1].sql
	if !strings.Contains(fetch, "q3c_radial_query") || !strings.Contains(fetch, "q3c_dist") {
		t.Errorf("fetch does not use q3c: %s", fetch)
	}
	if !strings.Contains(fetch, "ORDER BY angular_distance ASC, source_id ASC") {
		t.Errorf("fetch ordering wrong: %s", fetch)
	}
}

func TestConeSearchFilters(t *testing.T) {
	db := &fakeDB{rowResponses: []fakeRow{countRow(0)}}
	store := newStore(t, db)

	_, _, err := store.ConeSearch(context.Background(), 45, 0.1, 0.5, 10,
		WithMagnitudeLimit(15), WithMinParallax(2))
	if err != nil {
		t.Fatalf("ConeSearch() = %v", err)
	}

	sql := db.queries[0].sql
	if !strings.Contains(sql, "phot_g_mean_mag <= $4") {
		t.Errorf("magnitude filter missing: %s", sql)
	}
	if !strings.Contains(sql, "parallax >= $5") {
		t.Errorf("parallax filter missing: %s", sql)
	}
	args := db.queries[0].args
	if len(args) != 5 || args[3] != 15.0 || args[4] != 2.0 {
		t.Errorf("filter args = %v", args)
	}
}

func TestCount(t *testing.T) {
	db := &fakeDB{rowResponses: []fakeRow{countRow(7)}}
	store := newStore(t, db)

	count, err := store.Count(context.Background(), 120, -30, 1)
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}
	if got := len(db.queries); got != 1 {
		t.Errorf("queries = %d, want 1 (predicate only)", got)
	}
}

func TestLookupNotFound(t *testing.T) {
	db := &fakeDB{} // no responses: QueryRow yields ErrNoRows
	store := newStore(t, db)

	_, err := store.Lookup(context.Background(), 999999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup() = %v, want ErrNotFound", err)
	}
}

func TestLookupFound(t *testing.T) {
	db := &fakeDB{rowResponses: []fakeRow{{scan: starRow(123456, 10.5, -45.2, -1)}}}
	store := newStore(t, db)

	e, err := store.Lookup(context.Background(), 123456)
	if err != nil {
		t.Fatalf("Lookup() = %v", err)
	}
	if e.SourceID != 123456 || e.RA != 10.5 || e.Dec != -45.2 {
		t.Errorf("entry = %+v", e)
	}
	if e.AngularDistance != nil {
		t.Errorf("lookup must not set angular distance, got %v", *e.AngularDistance)
	}
}

func TestNearbyExcludesAnchor(t *testing.T) {
	db := &fakeDB{
		rowResponses:  []fakeRow{{scan: starRow(555555, 45, 0, -1)}},
		rowsResponses: []*fakeRows{{rows: []func(...any) error{starRow(555556, 45.01, 0, 0.01)}}},
	}
	store := newStore(t, db)

	stars, err := store.Nearby(context.Background(), 555555, 0.5, 10)
	if err != nil {
		t.Fatalf("Nearby() = %v", err)
	}
	if len(stars) != 1 || stars[0].SourceID != 555556 {
		t.Errorf("stars = %+v", stars)
	}

	fetch := db.queries[1]
	if !strings.Contains(fetch.sql, "source_id <> $4") {
		t.Errorf("nearby does not exclude anchor: %s", fetch.sql)
	}
	// Anchor coordinates feed the cone, not the caller's input.
	if fetch.args[0] != 45.0 || fetch.args[1] != 0.0 {
		t.Errorf("cone center = %v, %v, want anchor position", fetch.args[0], fetch.args[1])
	}
}

func TestNearbyUnknownAnchor(t *testing.T) {
	db := &fakeDB{}
	store := newStore(t, db)

	_, err := store.Nearby(context.Background(), 42, 0.5, 10)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Nearby() = %v, want ErrNotFound", err)
	}
}

func TestAngularSeparation(t *testing.T) {
	tests := []struct {
		name                 string
		ra1, dec1, ra2, dec2 float64
		want                 float64
	}{
		{"identical points", 45, 0, 45, 0, 0},
		{"one degree along equator", 45, 0, 46, 0, 1},
		{"one degree in declination", 120, 30, 120, 31, 1},
		{"poles", 0, 90, 0, -90, 180},
		{"ra wrap is metric not arithmetic", 359.5, 0, 0.5, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngularSeparation(tt.ra1, tt.dec1, tt.ra2, tt.dec2)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AngularSeparation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAngularSeparationSymmetry(t *testing.T) {
	a := AngularSeparation(10, 20, 200, -60)
	b := AngularSeparation(200, -60, 10, 20)
	if math.Abs(a-b) > 1e-12 {
		t.Errorf("separation not symmetric: %v vs %v", a, b)
	}
}
