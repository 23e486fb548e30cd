package zonalstats

import (
	"bytes"
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestOrbToFGBGeometryType(t *testing.T) {
	tests := []struct {
		name     string
		geom     orb.Geometry
		expected flattypes.GeometryType
	}{
		{"Point", orb.Point{1, 2}, flattypes.GeometryTypePoint},
		{"MultiPoint", orb.MultiPoint{{1, 2}, {3, 4}}, flattypes.GeometryTypeMultiPoint},
		{"LineString", orb.LineString{{0, 0}, {1, 1}}, flattypes.GeometryTypeLineString},
		{"MultiLineString", orb.MultiLineString{{{0, 0}, {1, 1}}}, flattypes.GeometryTypeMultiLineString},
		{"Ring", orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, flattypes.GeometryTypePolygon},
		{"Polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, flattypes.GeometryTypePolygon},
		{"MultiPolygon", orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}, flattypes.GeometryTypeMultiPolygon},
		{"Collection", orb.Collection{orb.Point{1, 2}}, flattypes.GeometryTypeGeometryCollection},
		{"Bound", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, flattypes.GeometryTypePolygon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := orbToFGBGeometryType(tt.geom)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestLayerGeometryType(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	tests := []struct {
		name     string
		geoms    []orb.Geometry
		expected flattypes.GeometryType
	}{
		{"uniform", []orb.Geometry{poly, poly}, flattypes.GeometryTypePolygon},
		{"leading nil", []orb.Geometry{nil, poly}, flattypes.GeometryTypePolygon},
		{"mixed", []orb.Geometry{poly, orb.Point{1, 1}}, flattypes.GeometryTypeUnknown},
		{"empty", nil, flattypes.GeometryTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := layerGeometryType(tt.geoms); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestGeometryToFGB_Nil(t *testing.T) {
	builder := flatbuffers.NewBuilder(256)

	geom := geometryToFGB(nil, builder)
	if geom != nil {
		t.Error("expected nil geometry for nil input")
	}
}

func TestPolygonToXYEnds(t *testing.T) {
	poly := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 2}},
	}
	xy, ends := polygonToXYEnds(poly)

	if len(xy) != 16 {
		t.Errorf("expected 16 coordinates, got %d", len(xy))
	}
	if len(ends) != 2 || ends[0] != 4 || ends[1] != 8 {
		t.Errorf("expected ends [4 8], got %v", ends)
	}
}

// roundTrip writes geometries through FlatGeobuf and reads them back.
func roundTrip(t *testing.T, geoms ...orb.Geometry) []*geojson.Feature {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, g := range geoms {
		fc.Append(geojson.NewFeature(g))
	}
	var buf bytes.Buffer
	if err := WriteFeatures(&buf, fc, nil); err != nil {
		t.Fatalf("WriteFeatures failed: %v", err)
	}
	r, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	defer r.Close()
	out, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return out.Features
}

func TestGeometryRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"Point", orb.Point{1.5, 2.5}},
		{"MultiPoint", orb.MultiPoint{{1, 2}, {3, 4}}},
		{"LineString", orb.LineString{{0, 0}, {1, 1}, {2, 2}}},
		{"MultiLineString", orb.MultiLineString{{{0, 0}, {1, 1}}, {{5, 5}, {6, 6}, {7, 5}}}},
		{"PolygonWithHole", orb.Polygon{
			{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
		}},
		{"MultiPolygon", orb.MultiPolygon{
			{{{0, 0}, {5, 0}, {5, 5}, {0, 5}, {0, 0}}},
			{{{10, 10}, {15, 10}, {15, 15}, {10, 15}, {10, 10}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			features := roundTrip(t, tt.geom)
			if len(features) != 1 {
				t.Fatalf("expected 1 feature, got %d", len(features))
			}
			if !orb.Equal(features[0].Geometry, tt.geom) {
				t.Errorf("expected %v, got %v", tt.geom, features[0].Geometry)
			}
		})
	}
}

func TestGeometryRoundTrip_BoundBecomesPolygon(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	features := roundTrip(t, bound)
	if len(features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(features))
	}
	poly, ok := features[0].Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("expected Polygon, got %T", features[0].Geometry)
	}
	if poly.Bound() != bound {
		t.Errorf("expected bound %v, got %v", bound, poly.Bound())
	}
}
