package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/taarya/taarya/internal/catalog"
	"github.com/taarya/taarya/internal/graph"
	"github.com/taarya/taarya/internal/log"
	"github.com/taarya/taarya/internal/papers"
)

// fakeCatalog serves canned spatial results.
type fakeCatalog struct {
	stars []catalog.Entry
	count int64
	err   error
}

func (f *fakeCatalog) ConeSearch(_ context.Context, ra, dec, radius float64, limit int, opts ...catalog.ConeOption) ([]catalog.Entry, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.stars, f.count, nil
}

func (f *fakeCatalog) Count(_ context.Context, ra, dec, radius float64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func (f *fakeCatalog) Lookup(_ context.Context, sourceID int64) (catalog.Entry, error) {
	if f.err != nil {
		return catalog.Entry{}, f.err
	}
	for _, s := range f.stars {
		if s.SourceID == sourceID {
			return s, nil
		}
	}
	return catalog.Entry{}, fmt.Errorf("%w: source_id %d", catalog.ErrNotFound, sourceID)
}

func (f *fakeCatalog) Nearby(_ context.Context, sourceID int64, radius float64, limit int) ([]catalog.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stars, nil
}

type fakePapers struct {
	results []papers.Result
	err     error
}

func (f *fakePapers) Search(_ context.Context, query string, limit int) ([]papers.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

type fakeGraph struct {
	traversal graph.Traversal
	err       error
}

func (f *fakeGraph) Traverse(_ context.Context, entity, relation string, maxHops int) (graph.Traversal, error) {
	if f.err != nil {
		return graph.Traversal{}, f.err
	}
	return f.traversal, nil
}

func newRegistry(t *testing.T, cat Catalog) *Registry {
	t.Helper()
	r := NewRegistry(log.NewNop())
	sp, err := NewSpatial(cat, log.NewNop())
	if err != nil {
		t.Fatalf("NewSpatial() = %v", err)
	}
	for name, fn := range map[string]func(*Registry) error{
		ConeSearchName:  func(r *Registry) error { return register(r, ConeSearchName, sp.ConeSearch) },
		StarLookupName:  func(r *Registry) error { return register(r, StarLookupName, sp.StarLookup) },
		NearbyStarsName: func(r *Registry) error { return register(r, NearbyStarsName, sp.NearbyStars) },
		CountStarsName:  func(r *Registry) error { return register(r, CountStarsName, sp.CountStars) },
	} {
		if err := fn(r); err != nil {
			t.Fatalf("register(%s) = %v", name, err)
		}
	}
	return r
}

func TestInvokeUnknownTool(t *testing.T) {
	r := newRegistry(t, &fakeCatalog{})

	res, err := r.Invoke(context.Background(), "warp_drive", nil)
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if res.Status != StatusError || res.Error == nil || res.Error.Code != ErrCodeUnknownTool {
		t.Errorf("result = %+v, want unknown_tool error", res)
	}
}

func TestInvokeRejectsSchemaViolations(t *testing.T) {
	r := newRegistry(t, &fakeCatalog{})

	tests := []struct {
		name  string
		input map[string]any
	}{
		{"missing required fields", map[string]any{"dec": 0.5}},
		{"wrong type", map[string]any{"ra": "forty-five", "dec": 0.5, "radius": 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Invoke(context.Background(), ConeSearchName, tt.input)
			if err != nil {
				t.Fatalf("Invoke() = %v", err)
			}
			if res.Status != StatusError || res.Error == nil || res.Error.Code != ErrCodeValidation {
				t.Errorf("result = %+v, want validation error", res)
			}
		})
	}
}

func TestInvokeConeSearch(t *testing.T) {
	dist := 0.01
	cat := &fakeCatalog{
		stars: []catalog.Entry{{SourceID: 100001, RA: 45.01, Dec: 0.5, AngularDistance: &dist}},
		count: 7,
	}
	r := newRegistry(t, cat)

	res, err := r.Invoke(context.Background(), ConeSearchName,
		map[string]any{"ra": 45.0, "dec": 0.5, "radius": 0.5, "limit": 10})
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("result = %+v", res)
	}
	data := res.Data.(map[string]any)
	if data["count"] != int64(7) {
		t.Errorf("count = %v, want 7", data["count"])
	}
	if data["returned"] != 1 {
		t.Errorf("returned = %v, want 1", data["returned"])
	}
}

func TestInvokeConeSearchRangeViolation(t *testing.T) {
	// Schema accepts any numbers; the catalog's own validation must still
	// surface as a validation-coded error result.
	sp, err := NewSpatial(&rangeCheckingCatalog{}, log.NewNop())
	if err != nil {
		t.Fatalf("NewSpatial() = %v", err)
	}
	res, err := sp.ConeSearch(nil, ConeSearchInput{RA: 400, Dec: 0, Radius: 0.5, Limit: 10})
	if err != nil {
		t.Fatalf("ConeSearch() = %v", err)
	}
	if res.Status != StatusError || res.Error.Code != ErrCodeValidation {
		t.Errorf("result = %+v, want validation error", res)
	}
}

// rangeCheckingCatalog applies real catalog validation without a database.
type rangeCheckingCatalog struct{ fakeCatalog }

func (c *rangeCheckingCatalog) ConeSearch(_ context.Context, ra, dec, radius float64, limit int, _ ...catalog.ConeOption) ([]catalog.Entry, int64, error) {
	if ra < 0 || ra >= 360 {
		return nil, 0, &catalog.ValidationError{Field: "ra", Message: "out of range"}
	}
	return nil, 0, nil
}

func TestStarLookupNotFound(t *testing.T) {
	r := newRegistry(t, &fakeCatalog{})

	res, err := r.Invoke(context.Background(), StarLookupName,
		map[string]any{"source_id": 424242})
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if res.Status != StatusError || res.Error.Code != ErrCodeNotFound {
		t.Errorf("result = %+v, want not_found error", res)
	}
}

func TestSemanticSearchClampsLimit(t *testing.T) {
	results := make([]papers.Result, MaxPassages+5)
	se, err := NewSemantic(&fakePapers{results: results}, log.NewNop())
	if err != nil {
		t.Fatalf("NewSemantic() = %v", err)
	}

	res, err := se.Search(nil, SemanticSearchInput{Query: "cluster ages", Limit: 100})
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	data := res.Data.(map[string]any)
	if data["result_count"] != MaxPassages {
		t.Errorf("result_count = %v, want %d", data["result_count"], MaxPassages)
	}
}

func TestGraphTraverseUnknownRelation(t *testing.T) {
	gt, err := NewGraph(&fakeGraph{err: fmt.Errorf("%w: FRIENDS", graph.ErrUnknownRelation)}, log.NewNop())
	if err != nil {
		t.Fatalf("NewGraph() = %v", err)
	}

	res, err := gt.Traverse(nil, GraphTraverseInput{Entity: "12345", RelationType: "FRIENDS"})
	if err != nil {
		t.Fatalf("Traverse() = %v", err)
	}
	if res.Status != StatusError || res.Error.Code != ErrCodeValidation {
		t.Errorf("result = %+v, want validation error", res)
	}
}

func TestInvokeAllPreservesOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	cat := &fakeCatalog{
		stars: []catalog.Entry{{SourceID: 1, RA: 10, Dec: 10}},
		count: 3,
	}
	r := newRegistry(t, cat)

	results, err := r.InvokeAll(context.Background(), []Invocation{
		{Tool: CountStarsName, Input: map[string]any{"ra": 10.0, "dec": 10.0, "radius": 1.0}},
		{Tool: StarLookupName, Input: map[string]any{"source_id": 1}},
		{Tool: StarLookupName, Input: map[string]any{"source_id": 2}},
	})
	if err != nil {
		t.Fatalf("InvokeAll() = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Status != StatusSuccess {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Status != StatusSuccess {
		t.Errorf("results[1] = %+v", results[1])
	}
	if results[2].Status != StatusError || results[2].Error.Code != ErrCodeNotFound {
		t.Errorf("results[2] = %+v, want not_found", results[2])
	}
}

func TestFailedSiblingDoesNotAbortOthers(t *testing.T) {
	r := newRegistry(t, &fakeCatalog{count: 9})

	results, err := r.InvokeAll(context.Background(), []Invocation{
		{Tool: "no_such_tool", Input: nil},
		{Tool: CountStarsName, Input: map[string]any{"ra": 10.0, "dec": 10.0, "radius": 1.0}},
	})
	if err != nil {
		t.Fatalf("InvokeAll() = %v", err)
	}
	if results[0].Error == nil || results[0].Error.Code != ErrCodeUnknownTool {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Status != StatusSuccess {
		t.Errorf("results[1] = %+v, sibling failure leaked", results[1])
	}
}

// stalledCatalog blocks until the caller's context expires.
type stalledCatalog struct{ fakeCatalog }

func (c *stalledCatalog) Count(ctx context.Context, _, _, _ float64) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestQueryBudgetYieldsTimeoutError(t *testing.T) {
	sp, err := NewSpatial(&stalledCatalog{}, log.NewNop())
	if err != nil {
		t.Fatalf("NewSpatial() = %v", err)
	}
	sp.timeout = 20 * time.Millisecond

	res, err := sp.CountStars(nil, CountStarsInput{RA: 10, Dec: 10, Radius: 1})
	if err != nil {
		t.Fatalf("CountStars() = %v", err)
	}
	if res.Status != StatusError || res.Error.Code != ErrCodeTimeout {
		t.Errorf("result = %+v, want timeout error", res)
	}
}

func TestNames(t *testing.T) {
	r := newRegistry(t, &fakeCatalog{})
	names := r.Names()
	want := []string{ConeSearchName, CountStarsName, NearbyStarsName, StarLookupName}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q (sorted)", i, names[i], want[i])
		}
	}
}
