// Package zoning resolves coordinates to municipal zoning records from a
// GeoJSON polygon dataset.
package zoning

import "context"

// Zone is the zoning record for a point.
type Zone struct {
	ZoneType       string `json:"zone_type"`
	BylawChapter   string `json:"bylaw_chapter"`
	BylawSection   string `json:"bylaw_section"`
	BylawException string `json:"bylaw_exception"`
}

// BylawReference returns the canonical "{chapter}.{section}" reference.
func (z Zone) BylawReference() string {
	return z.BylawChapter + "." + z.BylawSection
}

// DefaultZone is returned when coordinates are missing or match no polygon.
func DefaultZone() Zone {
	return Zone{
		ZoneType:       "CR",
		BylawChapter:   "40",
		BylawSection:   "40.10",
		BylawException: "",
	}
}

// Lookup resolves a coordinate to a zone. A miss is not an error: the
// implementation's default zone is returned instead.
type Lookup interface {
	Lookup(ctx context.Context, lat, lon float64) (Zone, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, lat, lon float64) (Zone, error)

// Lookup calls f.
func (f LookupFunc) Lookup(ctx context.Context, lat, lon float64) (Zone, error) {
	return f(ctx, lat, lon)
}

// Static always answers with one zone.
type Static Zone

// Lookup returns the static zone.
func (s Static) Lookup(ctx context.Context, _, _ float64) (Zone, error) {
	if err := ctx.Err(); err != nil {
		return Zone{}, err
	}
	return Zone(s), nil
}
