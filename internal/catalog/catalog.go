package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/taarya/taarya/internal/log"
)

// Querier defines the database operations Store needs. Interfaces are
// defined by the consumer, not the provider; *pgxpool.Pool satisfies this.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store answers spatial queries against the star catalog.
// Safe for concurrent use.
type Store struct {
	db     Querier
	logger log.Logger
}

// New creates a catalog store.
func New(db Querier, logger log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("catalog: db is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}, nil
}

const entryColumns = `source_id, ra, dec, parallax, pmra, pmdec,
	phot_g_mean_mag, phot_bp_mean_mag, phot_rp_mean_mag, catalog_source`

// ConeSearch returns stars within radius degrees of (ra, dec), ordered by
// angular distance ascending with source_id as tie-breaker. count is the
// total number of matches before the limit is applied.
func (s *Store) ConeSearch(ctx context.Context, ra, dec, radius float64, limit int, opts ...ConeOption) ([]Entry, int64, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if err := validateCone(ra, dec, radius, limit); err != nil {
		return nil, 0, err
	}

	var cfg coneConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	filter := ""
	args := []any{ra, dec, radius}
	if cfg.magLimit != nil {
		args = append(args, *cfg.magLimit)
		filter += fmt.Sprintf(" AND phot_g_mean_mag <= $%d", len(args))
	}
	if cfg.minParallax != nil {
		args = append(args, *cfg.minParallax)
		filter += fmt.Sprintf(" AND parallax >= $%d", len(args))
	}

	countSQL := `SELECT COUNT(*) FROM stars WHERE q3c_radial_query(ra, dec, $1, $2, $3)` + filter
	var count int64
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting cone matches: %w", err)
	}

	args = append(args, limit)
	querySQL := `SELECT ` + entryColumns + `,
		q3c_dist(ra, dec, $1, $2) AS angular_distance
	FROM stars
	WHERE q3c_radial_query(ra, dec, $1, $2, $3)` + filter + `
	ORDER BY angular_distance ASC, source_id ASC
	LIMIT $` + fmt.Sprint(len(args))

	rows, err := s.db.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("cone search query: %w", err)
	}
	defer rows.Close()

	stars, err := scanEntries(rows, true)
	if err != nil {
		return nil, 0, err
	}

	s.logger.Debug("cone search succeeded",
		"ra", ra, "dec", dec, "radius", radius,
		"returned", len(stars), "total", count)
	return stars, count, nil
}

// Count returns the number of stars within radius degrees of (ra, dec)
// without fetching any rows.
func (s *Store) Count(ctx context.Context, ra, dec, radius float64) (int64, error) {
	if err := validateCone(ra, dec, radius, 1); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM stars WHERE q3c_radial_query(ra, dec, $1, $2, $3)`,
		ra, dec, radius).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting stars: %w", err)
	}
	return count, nil
}

// Lookup returns the star with the given source identifier.
// Returns ErrNotFound when no such star exists.
func (s *Store) Lookup(ctx context.Context, sourceID int64) (Entry, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM stars WHERE source_id = $1`, sourceID)

	e, err := scanEntry(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: source_id %d", ErrNotFound, sourceID)
		}
		return Entry{}, fmt.Errorf("looking up star %d: %w", sourceID, err)
	}
	return e, nil
}

// Nearby returns stars within radius degrees of the star with the given
// source identifier, excluding the star itself, ordered like ConeSearch.
// Returns ErrNotFound when the anchor star does not exist.
func (s *Store) Nearby(ctx context.Context, sourceID int64, radius float64, limit int) ([]Entry, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if err := validateRadius(radius); err != nil {
		return nil, err
	}
	if err := validateLimit(limit); err != nil {
		return nil, err
	}

	anchor, err := s.Lookup(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+entryColumns+`,
			q3c_dist(ra, dec, $1, $2) AS angular_distance
		FROM stars
		WHERE q3c_radial_query(ra, dec, $1, $2, $3)
		  AND source_id <> $4
		ORDER BY angular_distance ASC, source_id ASC
		LIMIT $5`,
		anchor.RA, anchor.Dec, radius, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("nearby query: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows, true)
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, withDistance bool) (Entry, error) {
	var e Entry
	dest := []any{
		&e.SourceID, &e.RA, &e.Dec, &e.Parallax, &e.PMRA, &e.PMDec,
		&e.PhotGMeanMag, &e.PhotBPMeanMag, &e.PhotRPMeanMag, &e.CatalogSource,
	}
	if withDistance {
		dest = append(dest, &e.AngularDistance)
	}
	if err := row.Scan(dest...); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func scanEntries(rows pgx.Rows, withDistance bool) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows, withDistance)
		if err != nil {
			return nil, fmt.Errorf("scanning star row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating star rows: %w", err)
	}
	return entries, nil
}

// TotalStars returns the size of the catalog, for the stats endpoint.
func (s *Store) TotalStars(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM stars`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting catalog: %w", err)
	}
	return count, nil
}
