package zonalstats

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadVector_GeoJSON(t *testing.T) {
	vector, _ := fixture(t, "")
	layer, err := LoadVector(vector)
	require.NoError(t, err)

	assert.Equal(t, vector, layer.Source)
	assert.Equal(t, "zones", layer.Header.Name)
	assert.Equal(t, uint64(3), layer.Header.FeaturesCount)
	assert.Equal(t, "EPSG:4326", layer.CRS.Identifier())
	require.Len(t, layer.Features, 3)
	for i, f := range layer.Features {
		assert.Equal(t, i, f.Index)
	}
	assert.Equal(t, orb.Point{3.5, 0.5}, layer.Features[2].Geometry)
	assert.Equal(t, "outside", layer.Features[1].Properties["name"])
}

func TestLoadVector_GeoJSONCRSMember(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "named.json", `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3857"}},
  "features": [{"type": "Feature", "properties": null, "geometry": {"type": "Point", "coordinates": [1, 2]}}]
}`)
	layer, err := LoadVector(path)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3857", layer.CRS.Identifier())
	assert.NotNil(t, layer.Features[0].Properties)
}

func TestLoadVector_FlatGeobuf(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	for i, g := range []orb.Geometry{box(0, 0, 1, 1), box(2, 2, 3, 3)} {
		f := geojson.NewFeature(g)
		f.Properties["zone"] = i
		fc.Append(f)
	}
	var buf bytes.Buffer
	require.NoError(t, WriteFeatures(&buf, fc, &WriteOptions{Name: "zones", IncludeIndex: true, CRS: &CRS{Org: "EPSG", Code: 3035}}))

	path := filepath.Join(t.TempDir(), "zones.fgb")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	layer, err := LoadVector(path)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3035", layer.CRS.Identifier())
	assert.Equal(t, "zones", layer.Header.Name)
	assert.True(t, layer.Header.HasIndex)
	require.Len(t, layer.Features, 2)

	zones := map[int32]orb.Bound{}
	for _, f := range layer.Features {
		zones[f.Properties["zone"].(int32)] = f.Bound()
	}
	assert.Equal(t, box(0, 0, 1, 1).Bound(), zones[0])
	assert.Equal(t, box(2, 2, 3, 3).Bound(), zones[1])
}

func TestLoadVector_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]struct {
		path string
		err  error
	}{
		"unsupported": {writeFile(t, dir, "zones.shp", "x"), ErrUnsupportedFormat},
		"empty":       {writeFile(t, dir, "empty.geojson", `{"type":"FeatureCollection","features":[]}`), ErrEmptySource},
		"malformed":   {writeFile(t, dir, "bad.geojson", `{"type":`), ErrInvalidData},
		"missing":     {filepath.Join(dir, "missing.fgb"), nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadVector(tt.path)
			var dse *DataSourceError
			require.ErrorAs(t, err, &dse)
			assert.Equal(t, tt.path, dse.Source)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestFeature_ID(t *testing.T) {
	f := &Feature{Index: 7, Properties: geojson.Properties{"code": "x1"}}

	id, err := f.ID("")
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	id, err = f.ID("code")
	require.NoError(t, err)
	assert.Equal(t, "x1", id)

	_, err = f.ID("other")
	assert.ErrorIs(t, err, ErrFieldNotFound)

	assert.Equal(t, orb.Bound{}, f.Bound())
}
