package zoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Feature property names in the Toronto zoning area dataset.
const (
	propZone      = "ZN_ZONE"
	propChapter   = "ZBL_CHAPT"
	propSection   = "ZBL_SECTN"
	propException = "ZBL_EXCPTN"
)

// ErrNoFiles is returned when the dataset pattern matches nothing.
var ErrNoFiles = errors.New("no zoning files match pattern")

// area is one zoning polygon with its precomputed bounding box.
type area struct {
	bound orb.Bound
	geom  orb.Geometry
	zone  Zone
}

// index is an immutable snapshot of the dataset.
type index struct {
	areas []area
	files []string
}

// Dataset answers zoning lookups against polygons loaded from GeoJSON.
// Lookups read an immutable snapshot; Reload swaps it atomically, so a
// Dataset is safe for concurrent use.
type Dataset struct {
	pattern  string
	fallback Zone
	logger   *slog.Logger
	current  atomic.Pointer[index]
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithDefault sets the zone returned on a miss.
func WithDefault(z Zone) Option {
	return func(d *Dataset) {
		d.fallback = z
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dataset) {
		d.logger = logger
	}
}

// Open loads every GeoJSON file matching pattern (doublestar syntax, so
// "data/zoning/**/*.geojson" works).
func Open(pattern string, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		pattern:  pattern,
		fallback: DefaultZone(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// FromFeatureCollection builds a Dataset from an in-memory collection.
func FromFeatureCollection(fc *geojson.FeatureCollection, opts ...Option) *Dataset {
	d := &Dataset{
		fallback: DefaultZone(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.current.Store(&index{areas: areasFrom(fc)})
	return d
}

// Reload re-reads the files matching the pattern and swaps in the result.
// On error the previous snapshot stays in place.
func (d *Dataset) Reload() error {
	files, err := doublestar.FilepathGlob(d.pattern)
	if err != nil {
		return fmt.Errorf("glob %s: %w", d.pattern, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrNoFiles, d.pattern)
	}

	idx := &index{files: files}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		idx.areas = append(idx.areas, areasFrom(fc)...)
	}

	d.current.Store(idx)
	d.logger.Info("Loaded zoning dataset",
		"pattern", d.pattern,
		"files", len(files),
		"areas", len(idx.areas))
	return nil
}

// Lookup implements Lookup. Points outside every polygon get the default zone.
func (d *Dataset) Lookup(ctx context.Context, lat, lon float64) (Zone, error) {
	if err := ctx.Err(); err != nil {
		return Zone{}, err
	}
	if z, ok := d.Match(lat, lon); ok {
		return z, nil
	}
	return d.fallback, nil
}

// Match returns the zone of the first polygon containing the point.
func (d *Dataset) Match(lat, lon float64) (Zone, bool) {
	p := orb.Point{lon, lat}
	for _, a := range d.current.Load().areas {
		if !a.bound.Contains(p) {
			continue
		}
		if contains(a.geom, p) {
			return a.zone, true
		}
	}
	return Zone{}, false
}

// Len returns the number of polygons in the current snapshot.
func (d *Dataset) Len() int {
	return len(d.current.Load().areas)
}

// Files returns the files behind the current snapshot.
func (d *Dataset) Files() []string {
	return append([]string(nil), d.current.Load().files...)
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p)
	}
	return false
}

func areasFrom(fc *geojson.FeatureCollection) []area {
	areas := make([]area, 0, len(fc.Features))
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		areas = append(areas, area{
			bound: f.Geometry.Bound(),
			geom:  f.Geometry,
			zone: Zone{
				ZoneType:       property(f.Properties, propZone),
				BylawChapter:   property(f.Properties, propChapter),
				BylawSection:   property(f.Properties, propSection),
				BylawException: property(f.Properties, propException),
			},
		})
	}
	return areas
}

// property renders a feature property as text. Numeric codes appear in
// some exports, so numbers are formatted without exponent or padding.
func property(props geojson.Properties, key string) string {
	switch v := props[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
