package zonalstats

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tingold/orb-zonalstats/raster"
)

// Rasterize burns geom into a rows x cols coverage mask placed by t.
//
// Polygons cover the pixels whose centre lies inside them (even-odd rule,
// so ring orientation is irrelevant). With allTouched every pixel crossed
// by a ring edge is added as well, which makes the mask the set of pixels
// intersecting the polygon. Lines cover the pixels they cross. Points
// cover their containing pixel; use BoxPoints first for the boxed form.
// Empty or degenerate geometries give an all-false mask.
func Rasterize(geom orb.Geometry, rows, cols int, t raster.Affine, allTouched bool) []bool {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	r := &rasterizer{
		mask:       make([]bool, rows*cols),
		rows:       rows,
		cols:       cols,
		t:          t,
		allTouched: allTouched,
	}
	if geom != nil {
		r.burn(geom)
	}
	return r.mask
}

type rasterizer struct {
	mask       []bool
	rows, cols int
	t          raster.Affine
	allTouched bool
}

func (r *rasterizer) burn(geom orb.Geometry) {
	switch g := geom.(type) {
	case orb.Point:
		c, row := r.t.Pixel(g[0], g[1])
		r.set(int(math.Floor(row)), int(math.Floor(c)))
	case orb.MultiPoint:
		for _, p := range g {
			r.burn(p)
		}
	case orb.LineString:
		r.line(r.toPixels(g), false)
	case orb.MultiLineString:
		for _, ls := range g {
			r.burn(ls)
		}
	case orb.Ring:
		r.polygon(orb.Polygon{g})
	case orb.Polygon:
		r.polygon(g)
	case orb.MultiPolygon:
		for _, p := range g {
			r.polygon(p)
		}
	case orb.Bound:
		r.polygon(g.ToPolygon())
	case orb.Collection:
		for _, c := range g {
			r.burn(c)
		}
	}
}

func (r *rasterizer) set(row, col int) {
	if row >= 0 && row < r.rows && col >= 0 && col < r.cols {
		r.mask[row*r.cols+col] = true
	}
}

func (r *rasterizer) toPixels(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		c, row := r.t.Pixel(p[0], p[1])
		out[i] = orb.Point{c, row}
	}
	return out
}

// polygon fills one polygon by scanning pixel-centre rows in pixel space.
func (r *rasterizer) polygon(p orb.Polygon) {
	rings := make([][]orb.Point, 0, len(p))
	for _, ring := range p {
		if len(ring) < 3 {
			continue
		}
		px := r.toPixels(ring)
		if px[0] != px[len(px)-1] {
			px = append(px, px[0])
		}
		rings = append(rings, px)
	}
	if len(rings) == 0 {
		return
	}

	var xs []float64
	for row := 0; row < r.rows; row++ {
		y := float64(row) + 0.5
		xs = xs[:0]
		for _, ring := range rings {
			for i := 0; i+1 < len(ring); i++ {
				a, b := ring[i], ring[i+1]
				if (a[1] > y) == (b[1] > y) {
					continue
				}
				xs = append(xs, a[0]+(y-a[1])*(b[0]-a[0])/(b[1]-a[1]))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			// pixel c is inside when its centre c+0.5 is in [xs[i], xs[i+1])
			c0 := int(math.Ceil(xs[i] - 0.5))
			c1 := int(math.Ceil(xs[i+1]-0.5)) - 1
			for c := max(c0, 0); c <= min(c1, r.cols-1); c++ {
				r.mask[row*r.cols+c] = true
			}
		}
	}

	if r.allTouched {
		for _, ring := range rings {
			r.line(ring, true)
		}
	}
}

// line marks every pixel crossed by the polyline. Points are in pixel
// space.
func (r *rasterizer) line(pts []orb.Point, closed bool) {
	if len(pts) == 1 {
		r.set(int(math.Floor(pts[0][1])), int(math.Floor(pts[0][0])))
		return
	}
	for i := 0; i+1 < len(pts); i++ {
		r.segment(pts[i], pts[i+1])
	}
	if closed && len(pts) > 2 && pts[0] != pts[len(pts)-1] {
		r.segment(pts[len(pts)-1], pts[0])
	}
}

// segment walks the grid cells whose interior a-b crosses (Amanatides and
// Woo). The segment is clipped to the window first so long edges stay
// cheap. A segment lying on a grid line touches no interior and burns
// nothing.
func (r *rasterizer) segment(a, b orb.Point) {
	a, b, ok := clipSegment(a, b, -1, -1, float64(r.cols+1), float64(r.rows+1))
	if !ok {
		return
	}
	dx, dy := b[0]-a[0], b[1]-a[1]
	if (dx == 0 && a[0] == math.Floor(a[0])) || (dy == 0 && a[1] == math.Floor(a[1])) {
		return
	}

	cx, cy := startCell(a[0], dx), startCell(a[1], dy)
	ex, ey := endCell(b[0], dx), endCell(b[1], dy)
	stepX, tMaxX, tDeltaX := traversal(a[0], dx, cx)
	stepY, tMaxY, tDeltaY := traversal(a[1], dy, cy)

	r.set(cy, cx)
	for n := abs(ex-cx) + abs(ey-cy); n > 0; n-- {
		if tMaxX < tMaxY {
			cx += stepX
			tMaxX += tDeltaX
		} else {
			cy += stepY
			tMaxY += tDeltaY
		}
		r.set(cy, cx)
	}
}

// startCell is the cell a segment leaves from. A start on a cell edge
// belongs to the cell the segment heads into.
func startCell(v, d float64) int {
	f := math.Floor(v)
	if v == f && d < 0 {
		return int(f) - 1
	}
	return int(f)
}

// endCell is the last cell a segment enters. An end on a cell edge belongs
// to the cell the segment comes from.
func endCell(v, d float64) int {
	f := math.Floor(v)
	if v == f && d > 0 {
		return int(f) - 1
	}
	return int(f)
}

// traversal returns the step direction, the parameter of the first cell
// boundary crossing out of cell and the parameter distance between
// crossings along one axis.
func traversal(start, d float64, cell int) (int, float64, float64) {
	switch {
	case d > 0:
		return 1, (float64(cell) + 1 - start) / d, 1 / d
	case d < 0:
		return -1, (start - float64(cell)) / -d, -1 / d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

// clipSegment clips a-b to the rectangle (Liang-Barsky).
func clipSegment(a, b orb.Point, minX, minY, maxX, maxY float64) (orb.Point, orb.Point, bool) {
	t0, t1 := 0.0, 1.0
	dx, dy := b[0]-a[0], b[1]-a[1]
	for _, e := range [4][2]float64{
		{-dx, a[0] - minX},
		{dx, maxX - a[0]},
		{-dy, a[1] - minY},
		{dy, maxY - a[1]},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, t)
		}
	}
	return orb.Point{a[0] + t0*dx, a[1] + t0*dy}, orb.Point{a[0] + t1*dx, a[1] + t1*dy}, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// BoxPoints replaces every point of geom with its containing pixel of the
// grid t, shrunk by 1% of the smaller pixel size on each side, so a point
// always covers exactly one pixel. Other geometries are returned as is.
func BoxPoints(geom orb.Geometry, t raster.Affine) orb.Geometry {
	switch g := geom.(type) {
	case orb.Point:
		return boxPoint(g, t)
	case orb.MultiPoint:
		mp := make(orb.MultiPolygon, 0, len(g))
		for _, p := range g {
			mp = append(mp, boxPoint(p, t))
		}
		return mp
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, c := range g {
			out[i] = BoxPoints(c, t)
		}
		return out
	default:
		return geom
	}
}

func boxPoint(p orb.Point, t raster.Affine) orb.Polygon {
	row, col := t.RowCol(p[0], p[1], math.Floor)
	sx, sy := t.PixelSize()
	d := 0.01 * math.Min(sx, sy)
	ic, ir := d/sx, d/sy

	c0, c1 := float64(col)+ic, float64(col+1)-ic
	r0, r1 := float64(row)+ir, float64(row+1)-ir
	ring := make(orb.Ring, 0, 5)
	for _, c := range [][2]float64{{c0, r0}, {c1, r0}, {c1, r1}, {c0, r1}, {c0, r0}} {
		x, y := t.Apply(c[0], c[1])
		ring = append(ring, orb.Point{x, y})
	}
	return orb.Polygon{ring}
}
