package zoning

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two squares around downtown Toronto. The residential one carries numeric
// chapter/section codes, as some exports do.
const downtownGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"ZN_ZONE": "CRE", "ZBL_CHAPT": "40", "ZBL_SECTN": "40.10", "ZBL_EXCPTN": "x2"},
      "geometry": {"type": "Polygon", "coordinates": [[[-79.40, 43.64], [-79.37, 43.64], [-79.37, 43.66], [-79.40, 43.66], [-79.40, 43.64]]]}
    },
    {
      "type": "Feature",
      "properties": {"ZN_ZONE": "RD", "ZBL_CHAPT": 10, "ZBL_SECTN": 10.2, "ZBL_EXCPTN": null},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[-79.50, 43.70], [-79.45, 43.70], [-79.45, 43.75], [-79.50, 43.75], [-79.50, 43.70]]]]}
    },
    {
      "type": "Feature",
      "properties": {"ZN_ZONE": "IGNORED"},
      "geometry": {"type": "Point", "coordinates": [-79.38, 43.65]}
    }
  ]
}`

func writeDataset(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDatasetLookup(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "toronto/area.geojson", downtownGeoJSON)

	d, err := Open(filepath.Join(dir, "**", "*.geojson"))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	tests := []struct {
		name     string
		lat, lon float64
		want     Zone
	}{
		{
			name: "inside polygon",
			lat:  43.65, lon: -79.38,
			want: Zone{ZoneType: "CRE", BylawChapter: "40", BylawSection: "40.10", BylawException: "x2"},
		},
		{
			name: "inside multipolygon with numeric codes",
			lat:  43.72, lon: -79.47,
			want: Zone{ZoneType: "RD", BylawChapter: "10", BylawSection: "10.2"},
		},
		{
			name: "outside every polygon",
			lat:  43.0, lon: -79.07,
			want: DefaultZone(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Lookup(context.Background(), tt.lat, tt.lon)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatasetCustomDefault(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "area.geojson", downtownGeoJSON)

	fallback := Zone{ZoneType: "OS", BylawChapter: "90", BylawSection: "90.1"}
	d, err := Open(filepath.Join(dir, "*.geojson"), WithDefault(fallback))
	require.NoError(t, err)

	got, err := d.Lookup(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	_, ok := d.Match(0, 0)
	assert.False(t, ok)
}

func TestDatasetLookupCancelled(t *testing.T) {
	d := FromFeatureCollection(mustCollection(t, downtownGeoJSON))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Lookup(ctx, 43.65, -79.38)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "*.geojson"))
	assert.ErrorIs(t, err, ErrNoFiles)

	writeDataset(t, dir, "broken.geojson", `{"type": "FeatureCollection", "features": [`)
	_, err = Open(filepath.Join(dir, "*.geojson"))
	assert.ErrorContains(t, err, "parse")
}

func TestReloadKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeDataset(t, dir, "area.geojson", downtownGeoJSON)

	d, err := Open(filepath.Join(dir, "*.geojson"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	assert.Error(t, d.Reload())
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, []string{path}, d.Files())
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeDataset(t, dir, "area.geojson", downtownGeoJSON)

	d, err := Open(filepath.Join(dir, "*.geojson"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	single := `{"type": "FeatureCollection", "features": [{"type": "Feature", "properties": {"ZN_ZONE": "OS"},
	  "geometry": {"type": "Polygon", "coordinates": [[[-79.40, 43.64], [-79.37, 43.64], [-79.37, 43.66], [-79.40, 43.66], [-79.40, 43.64]]]}}]}`
	require.NoError(t, os.WriteFile(path, []byte(single), 0644))

	assert.Eventually(t, func() bool {
		z, ok := d.Match(43.65, -79.38)
		return ok && z.ZoneType == "OS"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, d.Len())
}

func TestZoneBylawReference(t *testing.T) {
	assert.Equal(t, "40.40.10", DefaultZone().BylawReference())

	z, err := Static(Zone{ZoneType: "RD", BylawChapter: "10", BylawSection: "10.5"}).Lookup(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "10.10.5", z.BylawReference())
}

func mustCollection(t *testing.T, data string) *geojson.FeatureCollection {
	t.Helper()
	fc, err := geojson.UnmarshalFeatureCollection([]byte(data))
	require.NoError(t, err)
	return fc
}
