// Package catalog provides spatial access to the star catalog.
//
// All cone queries run through the PostgreSQL q3c extension
// (q3c_radial_query / q3c_dist); validation happens in Go before any SQL
// is issued, so an out-of-range coordinate never reaches the database.
package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested star does not exist in the catalog.
// Distinct from an empty cone-search result, which is a successful query.
var ErrNotFound = errors.New("star not found")

// ValidationError describes a request parameter that failed range checks.
// Returned before any database round trip.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Entry is one star record. AngularDistance is populated only by cone
// queries (degrees from the query center); it is nil for direct lookups.
type Entry struct {
	SourceID        int64    `json:"source_id"`
	RA              float64  `json:"ra"`
	Dec             float64  `json:"dec"`
	Parallax        *float64 `json:"parallax,omitempty"`
	PMRA            *float64 `json:"pmra,omitempty"`
	PMDec           *float64 `json:"pmdec,omitempty"`
	PhotGMeanMag    *float64 `json:"phot_g_mean_mag,omitempty"`
	PhotBPMeanMag   *float64 `json:"phot_bp_mean_mag,omitempty"`
	PhotRPMeanMag   *float64 `json:"phot_rp_mean_mag,omitempty"`
	CatalogSource   string   `json:"catalog_source,omitempty"`
	AngularDistance *float64 `json:"angular_distance,omitempty"`
}

// ConeOption narrows a cone search beyond the positional predicate.
type ConeOption func(*coneConfig)

type coneConfig struct {
	magLimit    *float64
	minParallax *float64
}

// WithMagnitudeLimit keeps only stars with phot_g_mean_mag <= limit.
func WithMagnitudeLimit(limit float64) ConeOption {
	return func(c *coneConfig) { c.magLimit = &limit }
}

// WithMinParallax keeps only stars with parallax >= min (milliarcseconds).
func WithMinParallax(minMas float64) ConeOption {
	return func(c *coneConfig) { c.minParallax = &minMas }
}

// Parameter bounds shared by all spatial operations.
const (
	MaxRadiusDeg = 10.0
	MaxLimit     = 1000
	DefaultLimit = 100
)

func validateCone(ra, dec, radius float64, limit int) error {
	if ra < 0 || ra >= 360 {
		return &ValidationError{Field: "ra", Message: fmt.Sprintf("must be in [0, 360), got %g", ra)}
	}
	if dec < -90 || dec > 90 {
		return &ValidationError{Field: "dec", Message: fmt.Sprintf("must be in [-90, 90], got %g", dec)}
	}
	if err := validateRadius(radius); err != nil {
		return err
	}
	return validateLimit(limit)
}

func validateRadius(radius float64) error {
	if radius <= 0 || radius > MaxRadiusDeg {
		return &ValidationError{Field: "radius", Message: fmt.Sprintf("must be in (0, %g], got %g", MaxRadiusDeg, radius)}
	}
	return nil
}

func validateLimit(limit int) error {
	if limit < 1 || limit > MaxLimit {
		return &ValidationError{Field: "limit", Message: fmt.Sprintf("must be in [1, %d], got %d", MaxLimit, limit)}
	}
	return nil
}
