package zonalstats

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tingold/orb-zonalstats/raster"
)

// tens is a 4x4 grid of 10s over (0,0)-(4,4) with nodata in the upper
// left cell.
func tens(t *testing.T) *raster.Memory {
	t.Helper()
	data := make([]float64, 16)
	for i := range data {
		data[i] = 10
	}
	data[0] = -9999
	m, err := raster.NewMemory(4, 4, unit, raster.Float32, data)
	require.NoError(t, err)
	return m.SetNoData(-9999)
}

func layerOf(geoms ...orb.Geometry) *VectorLayer {
	layer := &VectorLayer{Source: "test"}
	for i, g := range geoms {
		layer.Features = append(layer.Features, &Feature{
			Index:      i,
			Geometry:   g,
			Properties: geojson.Properties{"name": string(rune('a' + i))},
		})
	}
	return layer
}

func TestZonalStats_WholeGridWithNoData(t *testing.T) {
	opts := DefaultOptions()
	opts.Stats = []string{"count sum mean min max range"}
	opts.AllTouched = true

	recs, err := ZonalStats(layerOf(box(0, 0, 4, 4)), tens(t), opts)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	s := recs[0].Stats
	assert.Equal(t, 15.0, stat(t, s, "count"))
	assert.Equal(t, 150.0, stat(t, s, "sum"))
	assert.Equal(t, 10.0, stat(t, s, "mean"))
	assert.Equal(t, 10.0, stat(t, s, "min"))
	assert.Equal(t, 10.0, stat(t, s, "max"))
	assert.Equal(t, 0.0, stat(t, s, "range"))
}

func TestZonalStats_OneRecordPerFeature(t *testing.T) {
	layer := layerOf(
		box(0, 0, 2, 2),
		box(100, 100, 101, 101),
		nil,
		orb.Point{1.5, 2.5},
	)
	recs, err := ZonalStats(layer, tens(t), nil)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	for i, r := range recs {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i, r.ID)
	}
	assert.Equal(t, 4.0, stat(t, recs[0].Stats, "count"))

	for _, r := range recs[1:3] {
		assert.Equal(t, 0.0, stat(t, r.Stats, "count"))
		_, ok := r.Stats.Get("mean")
		assert.False(t, ok)
	}
	assert.Equal(t, 1.0, stat(t, recs[3].Stats, "count"))
	assert.Equal(t, 10.0, stat(t, recs[3].Stats, "mean"))
}

func TestZonalStats_PointOnNoData(t *testing.T) {
	recs, err := ZonalStats(layerOf(orb.Point{0.5, 3.5}), tens(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stat(t, recs[0].Stats, "count"))
}

func TestZonalStats_NoDataOverride(t *testing.T) {
	opts := DefaultOptions()
	opts.NoData = new(float64)
	*opts.NoData = 10
	opts.Stats = []string{"count nodata"}

	recs, err := ZonalStats(layerOf(box(0, 0, 4, 4)), tens(t), opts)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stat(t, recs[0].Stats, "count"))
	assert.Equal(t, 15.0, stat(t, recs[0].Stats, "nodata"))
}

func TestZonalStats_IDField(t *testing.T) {
	opts := DefaultOptions()
	opts.IDField = "name"
	recs, err := ZonalStats(layerOf(box(0, 0, 1, 1), box(1, 1, 2, 2)), tens(t), opts)
	require.NoError(t, err)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)

	opts.IDField = "missing"
	_, err = ZonalStats(layerOf(box(0, 0, 1, 1)), tens(t), opts)
	var dse *DataSourceError
	require.ErrorAs(t, err, &dse)
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestZonalStats_BandOutOfRange(t *testing.T) {
	opts := DefaultOptions()
	opts.Band = 2
	_, err := ZonalStats(layerOf(box(0, 0, 1, 1)), tens(t), opts)
	assert.ErrorIs(t, err, raster.ErrBandOutOfRange)
}

func TestZonalStats_UnknownStat(t *testing.T) {
	opts := DefaultOptions()
	opts.Stats = []string{"mode"}
	_, err := ZonalStats(layerOf(box(0, 0, 1, 1)), tens(t), opts)
	assert.ErrorIs(t, err, ErrUnknownStat)
}

func TestZonalStats_ZoneFuncAndRasterOut(t *testing.T) {
	opts := DefaultOptions()
	opts.RasterOut = true
	opts.ZoneFunc = func(m *Masked) {
		m.Filter(func(v float64) bool { return false })
	}
	recs, err := ZonalStats(layerOf(box(0, 0, 2, 2)), tens(t), opts)
	require.NoError(t, err)

	require.NotNil(t, recs[0].Raster)
	assert.Equal(t, 4, recs[0].Raster.Len())
	assert.Zero(t, recs[0].Raster.Valid())
	assert.Equal(t, 0.0, stat(t, recs[0].Stats, "count"))
}

func TestZonalStats_Preprocess(t *testing.T) {
	data := []float64{1, 1, 1, 1, 1, 1, 100, 1, 1}
	ds, err := raster.NewMemory(3, 3, raster.NorthUp(0, 3, 1, 1), raster.Float64, data)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Stats = []string{"mean"}
	opts.Preprocess = &Preprocess{Kind: PreprocessStdDev, Value: 1}
	recs, err := ZonalStats(layerOf(box(0, 0, 3, 3)), ds, opts)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stat(t, recs[0].Stats, "mean"))
}
