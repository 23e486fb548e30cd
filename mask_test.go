package zonalstats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tingold/orb-zonalstats/raster"
)

func floatBlock(t *testing.T, values []float64, nodata *float64) *raster.Block {
	t.Helper()
	b := raster.NewBlock(raster.Window{Width: len(values), Height: 1}, unit, raster.Float32)
	copy(b.Floats, values)
	if nodata != nil {
		b.NoData, b.HasNoData = *nodata, true
	}
	return b
}

func TestCompose(t *testing.T) {
	nodata := -1.0
	b := floatBlock(t, []float64{1, -1, math.NaN(), 4, -1, math.NaN()}, &nodata)
	m := Compose(b, []bool{true, true, true, true, false, false})

	assert.Equal(t, []bool{false, true, true, false, true, true}, m.Excluded)
	assert.Equal(t, 1, m.NoData)
	assert.Equal(t, 1, m.NaN)
	assert.Equal(t, 2, m.Valid())
	assert.Equal(t, []float64{1, 4}, m.Values())
	assert.Nil(t, m.Ints())
}

func TestCompose_ShortCoverage(t *testing.T) {
	m := Compose(floatBlock(t, []float64{1, 2, 3}, nil), []bool{true})
	assert.Equal(t, 1, m.Valid())
	assert.Equal(t, 3, m.Len())
}

func TestCompose_Integer(t *testing.T) {
	b := raster.NewBlock(raster.Window{Width: 3, Height: 1}, unit, raster.Int16)
	copy(b.Ints, []int64{7, 0, 9})
	b.NoData, b.HasNoData = 0, true

	m := Compose(b, []bool{true, true, true})
	assert.True(t, m.IsInteger())
	assert.Equal(t, []int64{7, 9}, m.Ints())
	assert.Equal(t, 1, m.NoData)
	assert.Zero(t, m.NaN)
}

func TestMasked_FilterAndExclude(t *testing.T) {
	m := Compose(floatBlock(t, []float64{1, 2, 3, 4}, nil), []bool{true, true, true, true})
	m.Filter(func(v float64) bool { return v > 1 })
	assert.Equal(t, []float64{2, 3, 4}, m.Values())

	m.Exclude(3)
	assert.Equal(t, []float64{2, 3}, m.Values())
	assert.Equal(t, 0, m.NoData)
}

func TestEmptyMasked(t *testing.T) {
	ds, err := raster.NewMemory(2, 2, unit, raster.Float64, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	ds.SetNoData(-9999)

	m := emptyMasked(ds)
	assert.Zero(t, m.Len())
	assert.Zero(t, m.Valid())
	assert.True(t, m.Block.HasNoData)
}
