package zonalstats

import (
	"math"

	"github.com/tingold/orb-zonalstats/raster"
)

// Masked is a raster window with every pixel that is outside the zone,
// equal to the nodata value or NaN flagged as excluded.
type Masked struct {
	Block    *raster.Block
	Coverage []bool
	Excluded []bool

	// Covered pixels excluded for holding the nodata value or NaN. They
	// are counted over the coverage alone, before any later filtering.
	NoData int
	NaN    int
}

// Compose combines the block's nodata and NaN masks with a coverage mask.
// A pixel is excluded when it equals nodata, is NaN, or is not covered.
// Integer blocks are never tested for NaN. Coverage shorter than the block
// leaves the remaining pixels uncovered.
func Compose(b *raster.Block, coverage []bool) *Masked {
	n := b.Len()
	m := &Masked{Block: b, Coverage: make([]bool, n), Excluded: make([]bool, n)}
	copy(m.Coverage, coverage)

	integer := b.Type.IsInteger()
	for i := 0; i < n; i++ {
		v := b.At(i)
		nodata := b.HasNoData && v == b.NoData
		nan := !integer && math.IsNaN(v)
		if m.Coverage[i] {
			if nodata {
				m.NoData++
			}
			if nan {
				m.NaN++
			}
		}
		m.Excluded[i] = nodata || nan || !m.Coverage[i]
	}
	return m
}

// Len returns the number of pixels in the window.
func (m *Masked) Len() int { return len(m.Excluded) }

// Valid returns the number of pixels not excluded.
func (m *Masked) Valid() int {
	n := 0
	for _, ex := range m.Excluded {
		if !ex {
			n++
		}
	}
	return n
}

// IsInteger reports whether the underlying samples are integers.
func (m *Masked) IsInteger() bool { return m.Block.Type.IsInteger() }

// Values returns the valid pixel values in row-major order.
func (m *Masked) Values() []float64 {
	out := make([]float64, 0, m.Valid())
	for i, ex := range m.Excluded {
		if !ex {
			out = append(out, m.Block.At(i))
		}
	}
	return out
}

// Ints returns the valid pixel values of an integer window. It returns nil
// for floating point windows.
func (m *Masked) Ints() []int64 {
	if !m.IsInteger() {
		return nil
	}
	out := make([]int64, 0, m.Valid())
	for i, ex := range m.Excluded {
		if !ex {
			out = append(out, m.Block.Ints[i])
		}
	}
	return out
}

// Exclude flags pixel i as excluded.
func (m *Masked) Exclude(i int) { m.Excluded[i] = true }

// Filter excludes every valid pixel for which keep returns false.
func (m *Masked) Filter(keep func(v float64) bool) {
	for i, ex := range m.Excluded {
		if !ex && !keep(m.Block.At(i)) {
			m.Excluded[i] = true
		}
	}
}

func emptyMasked(ds raster.Dataset) *Masked {
	b := raster.NewBlock(raster.Window{}, ds.Transform(), ds.DataType())
	b.NoData, b.HasNoData = ds.NoData()
	return Compose(b, nil)
}
