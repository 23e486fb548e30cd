package raster

import "math"

// Affine maps pixel (col, row) to world coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// NorthUp returns the transform of an unrotated grid whose upper-left
// corner is (originX, originY).
func NorthUp(originX, originY, sizeX, sizeY float64) Affine {
	return Affine{A: sizeX, C: originX, E: -math.Abs(sizeY), F: originY}
}

// FromGDAL builds a transform from GDAL geotransform ordering.
func FromGDAL(gt [6]float64) Affine {
	return Affine{A: gt[1], B: gt[2], C: gt[0], D: gt[4], E: gt[5], F: gt[3]}
}

// Apply maps pixel coordinates to world coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Invert maps world coordinates back to fractional pixel coordinates.
func (t Affine) Invert(x, y float64) (col, row float64) {
	det := t.A*t.E - t.B*t.D
	if det == 0 {
		return math.NaN(), math.NaN()
	}
	dx, dy := x-t.C, y-t.F
	return (t.E*dx - t.B*dy) / det, (t.A*dy - t.D*dx) / det
}

// Offset returns the transform of a window whose top-left pixel is
// (col, row) in this grid.
func (t Affine) Offset(col, row int) Affine {
	x, y := t.Apply(float64(col), float64(row))
	out := t
	out.C, out.F = x, y
	return out
}

// PixelSize returns the absolute cell width and height.
func (t Affine) PixelSize() (float64, float64) {
	return math.Hypot(t.A, t.D), math.Hypot(t.B, t.E)
}

// Pixel is Invert with results within 1e-9 of a cell edge snapped onto
// the edge, so exact cell boundaries do not spill into a neighbour.
func (t Affine) Pixel(x, y float64) (col, row float64) {
	c, r := t.Invert(x, y)
	const eps = 1e-9
	return snap(c, eps), snap(r, eps)
}

// RowCol returns the pixel containing (x, y), rounding with op
// (math.Floor or math.Ceil).
func (t Affine) RowCol(x, y float64, op func(float64) float64) (row, col int) {
	c, r := t.Pixel(x, y)
	return int(op(r)), int(op(c))
}

func snap(v, eps float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < eps {
		return r
	}
	return v
}
