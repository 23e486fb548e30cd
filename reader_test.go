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

// gridZones returns n x n unit squares numbered row by row in a "zone"
// property.
func gridZones(n int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n*n; i++ {
		x, y := float64(i%n), float64(i/n)
		f := geojson.NewFeature(box(x, y, x+1, y+1))
		f.Properties = geojson.Properties{"zone": i, "label": "z"}
		fc.Append(f)
	}
	return fc
}

func fgbReader(t *testing.T, fc *geojson.FeatureCollection, opts *WriteOptions) *Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteFeatures(&buf, fc, opts))
	r, err := NewReaderFromData(buf.Bytes())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNewReaderFromData_Invalid(t *testing.T) {
	for _, data := range [][]byte{[]byte("not a flatgeobuf"), {}} {
		_, err := NewReaderFromData(data)
		assert.Error(t, err)
	}
}

func TestNewReader_File(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFeatures(&buf, gridZones(2), &WriteOptions{Name: "zones", IncludeIndex: true}))
	path := filepath.Join(t.TempDir(), "zones.fgb")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, "zones", h.Name)
	assert.Equal(t, "Polygon", h.GeometryType)
	assert.Equal(t, uint64(4), h.FeaturesCount)
	assert.True(t, h.HasIndex)
	assert.Equal(t, [4]float64{0, 0, 2, 2}, h.Envelope)

	_, err = NewReader(filepath.Join(t.TempDir(), "missing.fgb"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReader_Layer(t *testing.T) {
	r := fgbReader(t, gridZones(5), &WriteOptions{IncludeIndex: true, CRS: &CRS{Code: 3035}})
	layer, err := r.Layer()
	require.NoError(t, err)

	require.Len(t, layer.Features, 25)
	assert.Equal(t, "EPSG:3035", layer.CRS.Identifier())

	seen := make(map[int32]bool)
	for i, f := range layer.Features {
		assert.Equal(t, i, f.Index)
		zone := f.Properties["zone"].(int32)
		seen[zone] = true
		x, y := float64(zone%5), float64(zone/5)
		assert.Equal(t, orb.Bound{Min: orb.Point{x, y}, Max: orb.Point{x + 1, y + 1}}, f.Bound())
	}
	assert.Len(t, seen, 25)
}

func TestReader_Search(t *testing.T) {
	r := fgbReader(t, gridZones(10), nil)

	fc, err := r.Search(orb.Bound{Min: orb.Point{2.5, 2.5}, Max: orb.Point{3.5, 3.5}})
	require.NoError(t, err)

	var zones []int32
	for _, f := range fc.Features {
		zones = append(zones, f.Properties["zone"].(int32))
	}
	assert.ElementsMatch(t, []int32{22, 23, 32, 33}, zones)
}

func TestReader_NoIndex(t *testing.T) {
	r := fgbReader(t, gridZones(1), &WriteOptions{IncludeIndex: false})

	_, err := r.ReadAll()
	assert.ErrorIs(t, err, ErrNoIndex)
	_, err = r.Search(orb.Bound{Max: orb.Point{10, 10}})
	assert.ErrorIs(t, err, ErrNoIndex)
	_, err = r.Layer()
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestHeader_CRS(t *testing.T) {
	crs := &CRS{Org: "EPSG", Code: 32633, Name: "WGS 84 / UTM zone 33N"}
	r := fgbReader(t, gridZones(1), &WriteOptions{IncludeIndex: true, CRS: crs})

	h := r.Header()
	require.NotNil(t, h.CRS)
	assert.Equal(t, "EPSG:32633", h.CRS.Identifier())
	assert.Equal(t, crs.Name, h.CRS.Name)

	r = fgbReader(t, gridZones(1), nil)
	assert.Nil(t, r.Header().CRS)
}

func TestHeader_ColumnInfo(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{1, 2})
	f.Properties = geojson.Properties{
		"name":   "zone",
		"count":  42,
		"active": true,
		"mean":   3.14,
	}
	fc.Append(f)

	h := fgbReader(t, fc, nil).Header()
	types := make(map[string]string)
	for _, col := range h.Columns {
		types[col.Name] = col.Type
		assert.Equal(t, col.Name, col.Title)
		assert.True(t, col.Nullable)
	}
	assert.Equal(t, map[string]string{
		"name":   "String",
		"count":  "Int",
		"active": "Bool",
		"mean":   "Double",
	}, types)
}
