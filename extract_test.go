package zonalstats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zonesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "whole"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[4,0],[4,4],[0,4],[0,0]]]}},
    {"type": "Feature", "properties": {"name": "outside"},
     "geometry": {"type": "Polygon", "coordinates": [[[100,100],[101,100],[101,101],[100,101],[100,100]]]}},
    {"type": "Feature", "properties": {"name": "corner"},
     "geometry": {"type": "Point", "coordinates": [3.5, 0.5]}}
  ]
}`

const tensGrid = `ncols 4
nrows 4
xllcorner 0
yllcorner 0
cellsize 1
NODATA_value -9999
-9999 10 10 10
10 10 10 10
10 10 10 10
10 10 10 7
`

const localWKT = `LOCAL_CS["Engineering grid",LOCAL_DATUM["Site",32767],UNIT["foot",0.3048],AXIS["X",EAST],AXIS["Y",NORTH]]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fixture writes zones.geojson and dem.asc with the given .prj content.
// An empty prj writes no sidecar.
func fixture(t *testing.T, prj string) (vector, rasterPath string) {
	t.Helper()
	dir := t.TempDir()
	vector = writeFile(t, dir, "zones.geojson", zonesGeoJSON)
	rasterPath = writeFile(t, dir, "dem.asc", tensGrid)
	if prj != "" {
		writeFile(t, dir, "dem.prj", prj)
	}
	return vector, rasterPath
}

func newExtractor(t *testing.T, opts *Options) *Extractor {
	t.Helper()
	e, err := NewExtractor(opts)
	require.NoError(t, err)
	return e
}

func TestExtractPair(t *testing.T) {
	vector, rasterPath := fixture(t, "epsg:4326")
	opts := DefaultOptions()
	opts.IDField = "name"
	opts.Stats = []string{"count", "min", "max"}

	rs := newExtractor(t, opts).ExtractPair(vector, rasterPath)
	require.Equal(t, KindStats, rs.Kind, rs.Comment)
	assert.NoError(t, rs.Err)
	assert.Equal(t, "# Extracted from dem.asc using zones.geojson", rs.Comment)
	assert.Equal(t, "EPSG:4326", rs.CRS.Identifier())

	require.Len(t, rs.Records, 2)
	assert.Equal(t, "whole", rs.Records[0].ID)
	assert.Equal(t, 15.0, stat(t, rs.Records[0].Stats, "count"))
	assert.Equal(t, 7.0, stat(t, rs.Records[0].Stats, "min"))
	assert.Equal(t, "corner", rs.Records[1].ID)
	assert.Equal(t, 7.0, stat(t, rs.Records[1].Stats, "max"))

	require.Len(t, rs.Skipped, 1)
	assert.Equal(t, Skip{Index: 1, ID: "outside", Reason: "no valid pixels"}, rs.Skipped[0])
}

func TestExtractPair_PreprocessComment(t *testing.T) {
	vector, rasterPath := fixture(t, "EPSG:4326")
	opts := DefaultOptions()
	opts.Preprocess = &Preprocess{Kind: PreprocessPercentile, Value: 90}

	rs := newExtractor(t, opts).ExtractPair(vector, rasterPath)
	require.Equal(t, KindStats, rs.Kind)
	assert.Equal(t, "# Extracted from dem.asc using zones.geojson\n# Preprocessed using percentile : 90", rs.Comment)
}

func TestExtractPair_WKTWithAuthorityMatches(t *testing.T) {
	vector, rasterPath := fixture(t, knownWKT("EPSG:4326"))
	rs := newExtractor(t, nil).ExtractPair(vector, rasterPath)
	assert.Equal(t, KindStats, rs.Kind, rs.Comment)
}

func TestExtractPair_CRSMismatch(t *testing.T) {
	for name, prj := range map[string]string{
		"code":       "EPSG:3857",
		"dissimilar": localWKT,
		"missing":    "",
	} {
		t.Run(name, func(t *testing.T) {
			vector, rasterPath := fixture(t, prj)
			rs := newExtractor(t, nil).ExtractPair(vector, rasterPath)

			assert.Equal(t, KindCRSMismatch, rs.Kind)
			assert.ErrorIs(t, rs.Err, ErrCRSMismatch)
			assert.Empty(t, rs.Records)
			assert.True(t, strings.HasPrefix(rs.Comment, "Could not process dem.asc with zones.geojson.\nIssues: vector and raster have differing CRS."), rs.Comment)
		})
	}
}

func TestExtractPair_SourceErrors(t *testing.T) {
	vector, rasterPath := fixture(t, "EPSG:4326")
	dir := filepath.Dir(vector)
	e := newExtractor(t, nil)

	rs := e.ExtractPair(vector, filepath.Join(dir, "missing.asc"))
	assert.Equal(t, KindSourceError, rs.Kind)
	assert.True(t, strings.HasPrefix(rs.Comment, "Could not process missing.asc with zones.geojson.\n"), rs.Comment)

	rs = e.ExtractPair(filepath.Join(dir, "missing.geojson"), rasterPath)
	assert.Equal(t, KindSourceError, rs.Kind)
	var dse *DataSourceError
	assert.ErrorAs(t, rs.Err, &dse)

	empty := writeFile(t, dir, "empty.geojson", `{"type":"FeatureCollection","features":[]}`)
	rs = e.ExtractPair(empty, rasterPath)
	assert.Equal(t, KindSourceError, rs.Kind)
	assert.ErrorIs(t, rs.Err, ErrEmptySource)

	opts := DefaultOptions()
	opts.IDField = "nope"
	rs = newExtractor(t, opts).ExtractPair(vector, rasterPath)
	assert.Equal(t, KindSourceError, rs.Kind)
	assert.ErrorIs(t, rs.Err, ErrFieldNotFound)
}

func TestNewExtractor_InvalidOptions(t *testing.T) {
	_, err := NewExtractor(&Options{Stats: []string{"bogus"}})
	assert.ErrorIs(t, err, ErrUnknownStat)

	_, err = NewExtractor(&Options{Preprocess: &Preprocess{Kind: "zscore"}})
	assert.ErrorIs(t, err, ErrInvalidPreprocess)
}

func TestExtract_Batch(t *testing.T) {
	vector, rasterPath := fixture(t, "EPSG:4326")
	_, otherRaster := fixture(t, "EPSG:3857")
	e := newExtractor(t, nil)

	b := e.Extract([]string{vector}, []string{rasterPath, otherRaster})
	require.Equal(t, 2, b.Len())
	assert.Equal(t, rasterPath, b.Results[0].Raster)
	assert.Equal(t, KindStats, b.Results[0].Kind)
	assert.Equal(t, KindCRSMismatch, b.Results[1].Kind)
	assert.Equal(t, 2, b.Records())
	assert.Zero(t, e.Cache().Len())

	again := e.Extract([]string{vector}, []string{rasterPath, otherRaster})
	assert.Equal(t, b.Results, again.Results)
}

func TestExtract_Metrics(t *testing.T) {
	vector, rasterPath := fixture(t, "EPSG:4326")
	reg := prometheus.NewRegistry()
	opts := DefaultOptions()
	opts.Metrics = NewMetrics(reg)

	newExtractor(t, opts).Extract([]string{vector}, []string{rasterPath, rasterPath + ".missing.asc"})

	m := opts.Metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pairs.WithLabelValues("stats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pairs.WithLabelValues("source_error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Zones.WithLabelValues("computed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Zones.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Pairs))
}
