package zonalstats

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// orbToFGBGeometryType converts an orb.Geometry to its FlatGeobuf GeometryType.
func orbToFGBGeometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Ring, orb.Polygon, orb.Bound:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// layerGeometryType returns the common type of the geometries, or Unknown
// when they are mixed.
func layerGeometryType(geoms []orb.Geometry) flattypes.GeometryType {
	t := flattypes.GeometryTypeUnknown
	seen := false
	for _, g := range geoms {
		if g == nil {
			continue
		}
		gt := orbToFGBGeometryType(g)
		if seen && t != gt {
			return flattypes.GeometryTypeUnknown
		}
		t, seen = gt, true
	}
	return t
}

// geometryToFGB converts an orb.Geometry to a FlatGeobuf writer.Geometry.
func geometryToFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(appendXY(nil, v))

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(appendXY(nil, v))

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := xyEnds(parts)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Ring:
		return geometryToFGB(orb.Polygon{v}, builder)

	case orb.Bound:
		return geometryToFGB(v.ToPolygon(), builder)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonToXYEnds(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			parts = append(parts, *geometryToFGB(poly, builder))
		}
		g.SetParts(parts)

	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			if cg := geometryToFGB(child, builder); cg != nil {
				parts = append(parts, *cg)
			}
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

func appendXY(xy []float64, pts []orb.Point) []float64 {
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// xyEnds flattens parts into interleaved coordinates and cumulative end
// offsets, as stored by FlatGeobuf.
func xyEnds(parts [][]orb.Point) ([]float64, []uint32) {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	xy := make([]float64, 0, n*2)
	ends := make([]uint32, 0, len(parts))
	for _, p := range parts {
		xy = appendXY(xy, p)
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

func polygonToXYEnds(poly orb.Polygon) ([]float64, []uint32) {
	parts := make([][]orb.Point, len(poly))
	for i, r := range poly {
		parts[i] = r
	}
	return xyEnds(parts)
}

// geometryFromFGB converts a FlatGeobuf flattypes.Geometry to an orb.Geometry.
func geometryFromFGB(g *flattypes.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}

	switch g.Type() {
	case flattypes.GeometryTypePoint:
		if g.XyLength() < 2 {
			return orb.Point{}
		}
		return orb.Point{g.Xy(0), g.Xy(1)}

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(pointsFromXY(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeLineString:
		return orb.LineString(pointsFromXY(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeMultiLineString:
		parts := partsFromEnds(g)
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls

	case flattypes.GeometryTypePolygon:
		return polygonFromXYEnds(g)

	case flattypes.GeometryTypeMultiPolygon:
		n := g.PartsLength()
		if n == 0 {
			if poly := polygonFromXYEnds(g); len(poly) > 0 {
				return orb.MultiPolygon{poly}
			}
			return orb.MultiPolygon{}
		}
		mp := make(orb.MultiPolygon, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if poly := polygonFromXYEnds(&part); len(poly) > 0 {
					mp = append(mp, poly)
				}
			}
		}
		return mp

	case flattypes.GeometryTypeGeometryCollection:
		n := g.PartsLength()
		coll := make(orb.Collection, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if child := geometryFromFGB(&part); child != nil {
					coll = append(coll, child)
				}
			}
		}
		return coll

	default:
		return nil
	}
}

// pointsFromXY reads points [start, end) of the interleaved xy array.
func pointsFromXY(g *flattypes.Geometry, start, end int) []orb.Point {
	if end > g.XyLength()/2 {
		end = g.XyLength() / 2
	}
	if start >= end {
		return []orb.Point{}
	}
	pts := make([]orb.Point, 0, end-start)
	for i := start; i < end; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// partsFromEnds splits the xy array at the ends offsets. Without ends the
// whole array is one part.
func partsFromEnds(g *flattypes.Geometry) [][]orb.Point {
	total := g.XyLength() / 2
	if total == 0 {
		return nil
	}
	if g.EndsLength() == 0 {
		return [][]orb.Point{pointsFromXY(g, 0, total)}
	}
	parts := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		parts = append(parts, pointsFromXY(g, start, end))
		start = end
	}
	return parts
}

func polygonFromXYEnds(g *flattypes.Geometry) orb.Polygon {
	parts := partsFromEnds(g)
	poly := make(orb.Polygon, len(parts))
	for i, p := range parts {
		poly[i] = orb.Ring(p)
	}
	return poly
}
