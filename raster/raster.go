// Package raster provides windowed access to gridded raster sources
// (GeoTIFF, ESRI ASCII grid and in-memory arrays) for zonal statistics.
package raster

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

// Common errors returned by this package.
var (
	ErrUnsupportedFormat = errors.New("raster: unsupported format")
	ErrInvalidData       = errors.New("raster: invalid data")
	ErrBandOutOfRange    = errors.New("raster: band out of range")
	ErrWindowOutOfRange  = errors.New("raster: window outside raster extent")
	ErrClosed            = errors.New("raster: dataset closed")
)

// DataType is the sample type of a raster band.
type DataType int

const (
	Uint8 DataType = iota + 1
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

var dataTypeNames = map[DataType]string{
	Uint8:   "uint8",
	Int8:    "int8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Uint64:  "uint64",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// IsInteger reports whether samples of this type can never be NaN.
func (t DataType) IsInteger() bool {
	return t >= Uint8 && t <= Int64
}

// Window is a rectangular pixel region.
type Window struct {
	Col, Row      int
	Width, Height int
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

// Block is the result of a windowed read. Integer bands are widened
// into Ints, floating point bands are stored in Floats.
type Block struct {
	Window    Window
	Transform Affine
	Type      DataType
	Ints      []int64
	Floats    []float64
	NoData    float64
	HasNoData bool
}

// NewBlock allocates a zeroed block for the window.
func NewBlock(w Window, t Affine, dt DataType) *Block {
	b := &Block{Window: w, Transform: t, Type: dt}
	n := 0
	if !w.Empty() {
		n = w.Width * w.Height
	}
	if dt.IsInteger() {
		b.Ints = make([]int64, n)
	} else {
		b.Floats = make([]float64, n)
	}
	return b
}

// Rows returns the block height.
func (b *Block) Rows() int { return b.Window.Height }

// Cols returns the block width.
func (b *Block) Cols() int { return b.Window.Width }

// Len returns the number of pixels in the block.
func (b *Block) Len() int {
	if b.Type.IsInteger() {
		return len(b.Ints)
	}
	return len(b.Floats)
}

// Empty reports whether the block holds no pixels.
func (b *Block) Empty() bool { return b.Len() == 0 }

// At returns pixel i (row-major) as float64.
func (b *Block) At(i int) float64 {
	if b.Type.IsInteger() {
		return float64(b.Ints[i])
	}
	return b.Floats[i]
}

// Dataset is an open raster source. Implementations are not safe for
// concurrent use.
type Dataset interface {
	Width() int
	Height() int
	Bands() int
	Transform() Affine
	NoData() (float64, bool)
	DataType() DataType
	// SpatialRef returns "ORG:CODE", WKT, or "" when unknown.
	SpatialRef() string
	// Read reads band (1-based) over a window fully inside the extent.
	Read(w Window, band int) (*Block, error)
	Close() error
}

// Open opens a raster file, choosing the decoder from the extension.
func Open(path string) (Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return OpenGeoTIFF(path)
	case ".asc":
		return OpenASCIIGrid(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Bounds returns the world extent of the dataset.
func Bounds(ds Dataset) orb.Bound {
	t := ds.Transform()
	w, h := float64(ds.Width()), float64(ds.Height())
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, c := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := t.Apply(c[0], c[1])
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// WindowFor returns the pixel window covering bound, clamped to the
// dataset extent. The upper-left corner is floored and the lower-right
// corner ceiled so partially covered cells are included.
func WindowFor(ds Dataset, bound orb.Bound) Window {
	t := ds.Transform()
	minC, minR := math.Inf(1), math.Inf(1)
	maxC, maxR := math.Inf(-1), math.Inf(-1)
	for _, p := range []orb.Point{bound.Min, bound.Max, {bound.Min[0], bound.Max[1]}, {bound.Max[0], bound.Min[1]}} {
		c, r := t.Invert(p[0], p[1])
		minC, maxC = math.Min(minC, c), math.Max(maxC, c)
		minR, maxR = math.Min(minR, r), math.Max(maxR, r)
	}
	if math.IsNaN(minC) || math.IsNaN(minR) {
		return Window{}
	}

	const eps = 1e-9
	col0 := clamp(int(math.Floor(snap(minC, eps))), 0, ds.Width())
	row0 := clamp(int(math.Floor(snap(minR, eps))), 0, ds.Height())
	col1 := clamp(int(math.Ceil(snap(maxC, eps))), 0, ds.Width())
	row1 := clamp(int(math.Ceil(snap(maxR, eps))), 0, ds.Height())

	// degenerate bounds (a line or point on the grid) still need one cell
	if col1 == col0 && col0 < ds.Width() && maxC >= 0 {
		col1 = col0 + 1
	}
	if row1 == row0 && row0 < ds.Height() && maxR >= 0 {
		row1 = row0 + 1
	}
	return Window{Col: col0, Row: row0, Width: col1 - col0, Height: row1 - row0}
}

// ReadBounds reads the part of band covering bound. When bound does not
// intersect the raster an empty block is returned with a nil error.
func ReadBounds(ds Dataset, band int, bound orb.Bound) (*Block, error) {
	w := WindowFor(ds, bound)
	if w.Empty() {
		nodata, has := ds.NoData()
		b := NewBlock(Window{}, ds.Transform(), ds.DataType())
		b.NoData, b.HasNoData = nodata, has
		return b, nil
	}
	return ds.Read(w, band)
}

func checkRead(ds Dataset, w Window, band int) error {
	if band < 1 || band > ds.Bands() {
		return fmt.Errorf("%w: %d of %d", ErrBandOutOfRange, band, ds.Bands())
	}
	if w.Empty() || w.Col < 0 || w.Row < 0 || w.Col+w.Width > ds.Width() || w.Row+w.Height > ds.Height() {
		return fmt.Errorf("%w: %+v", ErrWindowOutOfRange, w)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type noDataOverride struct {
	Dataset
	value float64
}

// WithNoData overrides the nodata value reported by ds and stamped on
// every block it reads.
func WithNoData(ds Dataset, value float64) Dataset {
	return &noDataOverride{Dataset: ds, value: value}
}

func (o *noDataOverride) NoData() (float64, bool) { return o.value, true }

func (o *noDataOverride) Read(w Window, band int) (*Block, error) {
	b, err := o.Dataset.Read(w, band)
	if err != nil {
		return nil, err
	}
	b.NoData, b.HasNoData = o.value, true
	return b, nil
}
