package tools

// spatial.go defines the catalog tools: cone_search, star_lookup,
// find_nearby_stars, count_stars_in_region.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/taarya/taarya/internal/catalog"
	"github.com/taarya/taarya/internal/log"
)

// Tool name constants for catalog operations registered with Genkit.
const (
	ConeSearchName  = "cone_search"
	StarLookupName  = "star_lookup"
	NearbyStarsName = "find_nearby_stars"
	CountStarsName  = "count_stars_in_region"
)

// Catalog defines the spatial operations the tools need.
// *catalog.Store satisfies this.
type Catalog interface {
	ConeSearch(ctx context.Context, ra, dec, radius float64, limit int, opts ...catalog.ConeOption) ([]catalog.Entry, int64, error)
	Count(ctx context.Context, ra, dec, radius float64) (int64, error)
	Lookup(ctx context.Context, sourceID int64) (catalog.Entry, error)
	Nearby(ctx context.Context, sourceID int64, radius float64, limit int) ([]catalog.Entry, error)
}

// ConeSearchInput defines input for the cone_search tool.
type ConeSearchInput struct {
	RA          float64  `json:"ra" jsonschema_description:"Right ascension of the cone center in degrees, [0, 360)"`
	Dec         float64  `json:"dec" jsonschema_description:"Declination of the cone center in degrees, [-90, 90]"`
	Radius      float64  `json:"radius" jsonschema_description:"Cone radius in degrees, (0, 10]"`
	Limit       int      `json:"limit,omitempty" jsonschema_description:"Maximum stars to return (default 100, max 1000)"`
	MagLimit    *float64 `json:"mag_limit,omitempty" jsonschema_description:"Keep only stars with G magnitude <= this value"`
	MinParallax *float64 `json:"min_parallax,omitempty" jsonschema_description:"Keep only stars with parallax >= this value in milliarcseconds"`
}

// StarLookupInput defines input for the star_lookup tool.
type StarLookupInput struct {
	SourceID int64 `json:"source_id" jsonschema_description:"Catalog source identifier of the star"`
}

// NearbyStarsInput defines input for the find_nearby_stars tool.
type NearbyStarsInput struct {
	SourceID int64   `json:"source_id" jsonschema_description:"Catalog source identifier of the anchor star"`
	Radius   float64 `json:"radius,omitempty" jsonschema_description:"Search radius in degrees (default 0.1)"`
	Limit    int     `json:"limit,omitempty" jsonschema_description:"Maximum stars to return (default 20)"`
}

// CountStarsInput defines input for the count_stars_in_region tool.
type CountStarsInput struct {
	RA     float64 `json:"ra" jsonschema_description:"Right ascension of the region center in degrees, [0, 360)"`
	Dec    float64 `json:"dec" jsonschema_description:"Declination of the region center in degrees, [-90, 90]"`
	Radius float64 `json:"radius" jsonschema_description:"Region radius in degrees, (0, 10]"`
}

// Spatial holds dependencies for catalog tool handlers.
type Spatial struct {
	catalog Catalog
	timeout time.Duration // per-call budget, 0 = unbounded
	logger  log.Logger
}

// NewSpatial creates a Spatial instance.
func NewSpatial(cat Catalog, logger log.Logger) (*Spatial, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Spatial{catalog: cat, logger: logger}, nil
}

// RegisterSpatial registers the catalog tools with Genkit.
func RegisterSpatial(g *genkit.Genkit, sp *Spatial) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if sp == nil {
		return nil, fmt.Errorf("Spatial is required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, ConeSearchName,
			"Search the star catalog for stars within an angular radius of a sky position. "+
				"Input: ra and dec in degrees, radius in degrees (max 10). "+
				"Optional: limit, mag_limit (G magnitude ceiling), min_parallax (mas). "+
				"Returns: stars ordered by angular distance from the center, plus the total "+
				"match count before truncation. "+
				"Use this when the user gives coordinates or asks what is near a sky position.",
			sp.ConeSearch),
		genkit.DefineTool(g, StarLookupName,
			"Look up a single star by its catalog source identifier. "+
				"Returns: position, parallax, proper motion, and photometry. "+
				"Use this when the user names a specific source_id.",
			sp.StarLookup),
		genkit.DefineTool(g, NearbyStarsName,
			"Find stars near a known star, identified by source_id. "+
				"Searches a cone around that star's position and excludes the star itself. "+
				"Returns: neighbors ordered by angular distance. "+
				"Use this for questions like 'what is close to star X'.",
			sp.NearbyStars),
		genkit.DefineTool(g, CountStarsName,
			"Count stars within an angular radius of a sky position without returning them. "+
				"Cheaper than cone_search when only the number matters. "+
				"Use this for 'how many stars are in ...' questions.",
			sp.CountStars),
	}, nil
}

// ConeSearch searches the catalog around a sky position.
func (s *Spatial) ConeSearch(ctx *ai.ToolContext, input ConeSearchInput) (Result, error) {
	s.logger.Info("ConeSearch called", "ra", input.RA, "dec", input.Dec, "radius", input.Radius)

	var opts []catalog.ConeOption
	if input.MagLimit != nil {
		opts = append(opts, catalog.WithMagnitudeLimit(*input.MagLimit))
	}
	if input.MinParallax != nil {
		opts = append(opts, catalog.WithMinParallax(*input.MinParallax))
	}

	qctx, cancel := withBudget(toolCtx(ctx), s.timeout)
	defer cancel()

	stars, count, err := s.catalog.ConeSearch(qctx, input.RA, input.Dec, input.Radius, input.Limit, opts...)
	if err != nil {
		return s.fail(ctx, "ConeSearch", err)
	}

	s.logger.Info("ConeSearch succeeded", "returned", len(stars), "total", count)
	return Result{
		Status: StatusSuccess,
		Data: map[string]any{
			"stars":    stars,
			"count":    count,
			"returned": len(stars),
		},
	}, nil
}

// StarLookup fetches one star by source identifier.
func (s *Spatial) StarLookup(ctx *ai.ToolContext, input StarLookupInput) (Result, error) {
	s.logger.Info("StarLookup called", "source_id", input.SourceID)

	qctx, cancel := withBudget(toolCtx(ctx), s.timeout)
	defer cancel()

	star, err := s.catalog.Lookup(qctx, input.SourceID)
	if err != nil {
		return s.fail(ctx, "StarLookup", err)
	}

	s.logger.Info("StarLookup succeeded", "source_id", input.SourceID)
	return Result{Status: StatusSuccess, Data: map[string]any{"star": star}}, nil
}

// NearbyStars finds neighbors of a known star.
func (s *Spatial) NearbyStars(ctx *ai.ToolContext, input NearbyStarsInput) (Result, error) {
	s.logger.Info("NearbyStars called", "source_id", input.SourceID, "radius", input.Radius)

	radius := input.Radius
	if radius == 0 {
		radius = 0.1
	}
	limit := input.Limit
	if limit == 0 {
		limit = 20
	}

	qctx, cancel := withBudget(toolCtx(ctx), s.timeout)
	defer cancel()

	stars, err := s.catalog.Nearby(qctx, input.SourceID, radius, limit)
	if err != nil {
		return s.fail(ctx, "NearbyStars", err)
	}

	s.logger.Info("NearbyStars succeeded", "source_id", input.SourceID, "returned", len(stars))
	return Result{
		Status: StatusSuccess,
		Data: map[string]any{
			"source_id": input.SourceID,
			"stars":     stars,
			"returned":  len(stars),
		},
	}, nil
}

// CountStars counts stars in a region.
func (s *Spatial) CountStars(ctx *ai.ToolContext, input CountStarsInput) (Result, error) {
	s.logger.Info("CountStars called", "ra", input.RA, "dec", input.Dec, "radius", input.Radius)

	qctx, cancel := withBudget(toolCtx(ctx), s.timeout)
	defer cancel()

	count, err := s.catalog.Count(qctx, input.RA, input.Dec, input.Radius)
	if err != nil {
		return s.fail(ctx, "CountStars", err)
	}

	s.logger.Info("CountStars succeeded", "count", count)
	return Result{Status: StatusSuccess, Data: map[string]any{"count": count}}, nil
}

// fail maps a catalog error onto the Result error taxonomy.
// Context cancellation stays a Go error so the orchestrator can abort.
func (s *Spatial) fail(ctx *ai.ToolContext, op string, err error) (Result, error) {
	if c := toolCtx(ctx); c.Err() != nil && errors.Is(err, context.Canceled) {
		return Result{}, fmt.Errorf("%s canceled: %w", op, err)
	}

	s.logger.Warn(op+" failed", "error", err)

	var verr *catalog.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorResult(ErrCodeValidation, verr.Error()), nil
	case errors.Is(err, catalog.ErrNotFound):
		return errorResult(ErrCodeNotFound, err.Error()), nil
	case errors.Is(err, context.DeadlineExceeded):
		return errorResult(ErrCodeTimeout, op+" exceeded its time budget"), nil
	default:
		return errorResult(ErrCodeExecution, "catalog query failed"), nil
	}
}

// withBudget applies the per-call time budget when one is configured.
func withBudget(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// toolCtx unwraps the context from a genkit tool context, tolerating nil
// for direct dispatch.
func toolCtx(ctx *ai.ToolContext) context.Context {
	if ctx == nil || ctx.Context == nil {
		return context.Background()
	}
	return ctx.Context
}
