package raster

import "fmt"

// Memory is an in-memory single band raster.
type Memory struct {
	width, height int
	transform     Affine
	dtype         DataType
	ints          []int64
	floats        []float64
	nodata        float64
	hasNoData     bool
	srs           string
}

// NewMemory wraps row-major float samples. The slice is not copied.
func NewMemory(width, height int, t Affine, dt DataType, data []float64) (*Memory, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, fmt.Errorf("%w: %dx%d grid with %d samples", ErrInvalidData, width, height, len(data))
	}
	m := &Memory{width: width, height: height, transform: t, dtype: dt}
	if dt.IsInteger() {
		m.ints = make([]int64, len(data))
		for i, v := range data {
			m.ints[i] = int64(v)
		}
	} else {
		m.floats = data
	}
	return m, nil
}

// NewMemoryInts wraps row-major integer samples of type dt.
func NewMemoryInts(width, height int, t Affine, dt DataType, data []int64) (*Memory, error) {
	if !dt.IsInteger() {
		return nil, fmt.Errorf("%w: %s is not an integer type", ErrInvalidData, dt)
	}
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, fmt.Errorf("%w: %dx%d grid with %d samples", ErrInvalidData, width, height, len(data))
	}
	return &Memory{width: width, height: height, transform: t, dtype: dt, ints: data}, nil
}

// SetNoData sets the nodata sentinel.
func (m *Memory) SetNoData(v float64) *Memory {
	m.nodata, m.hasNoData = v, true
	return m
}

// SetSpatialRef sets the CRS string reported by SpatialRef.
func (m *Memory) SetSpatialRef(s string) *Memory {
	m.srs = s
	return m
}

func (m *Memory) Width() int { return m.width }
func (m *Memory) Height() int { return m.height }
func (m *Memory) Bands() int { return 1 }
func (m *Memory) Transform() Affine { return m.transform }
func (m *Memory) NoData() (float64, bool) { return m.nodata, m.hasNoData }
func (m *Memory) DataType() DataType { return m.dtype }
func (m *Memory) SpatialRef() string { return m.srs }
func (m *Memory) Close() error { return nil }

func (m *Memory) Read(w Window, band int) (*Block, error) {
	if err := checkRead(m, w, band); err != nil {
		return nil, err
	}
	b := NewBlock(w, m.transform.Offset(w.Col, w.Row), m.dtype)
	b.NoData, b.HasNoData = m.nodata, m.hasNoData
	for r := 0; r < w.Height; r++ {
		src := (w.Row+r)*m.width + w.Col
		dst := r * w.Width
		if m.dtype.IsInteger() {
			copy(b.Ints[dst:dst+w.Width], m.ints[src:src+w.Width])
		} else {
			copy(b.Floats[dst:dst+w.Width], m.floats[src:src+w.Width])
		}
	}
	return b, nil
}
