package zonalstats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature is one zone of a vector layer.
type Feature struct {
	Index      int
	Geometry   orb.Geometry
	Properties geojson.Properties
}

// Bound returns the bounding box of the geometry, or an empty bound when
// the feature has none.
func (f *Feature) Bound() orb.Bound {
	if f.Geometry == nil {
		return orb.Bound{}
	}
	return f.Geometry.Bound()
}

// ID returns the value of field, or the feature index when field is "".
func (f *Feature) ID(field string) (any, error) {
	if field == "" {
		return f.Index, nil
	}
	v, ok := f.Properties[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q on feature %d", ErrFieldNotFound, field, f.Index)
	}
	return v, nil
}

// VectorLayer is a parsed vector source. It is not modified after loading.
type VectorLayer struct {
	Source   string
	Header   *Header
	CRS      *CRS
	Features []*Feature
}

// LoadVector reads every feature of a FlatGeobuf (.fgb) or GeoJSON
// (.geojson, .json) file. Failures and empty layers are reported as
// *DataSourceError.
func LoadVector(path string) (*VectorLayer, error) {
	var (
		layer *VectorLayer
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fgb":
		layer, err = readFlatGeobuf(path)
	case ".geojson", ".json":
		layer, err = readGeoJSON(path)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return nil, &DataSourceError{Source: path, Err: err}
	}
	if len(layer.Features) == 0 {
		return nil, &DataSourceError{Source: path, Err: ErrEmptySource}
	}
	layer.Source = path
	return layer, nil
}

func readFlatGeobuf(path string) (*VectorLayer, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Layer()
}

func readGeoJSON(path string) (*VectorLayer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	crs, err := geoJSONCRS(fc)
	if err != nil {
		return nil, err
	}
	header := &Header{
		Name:          strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FeaturesCount: uint64(len(fc.Features)),
		CRS:           crs,
	}
	if fc.BBox.Valid() {
		b := fc.BBox.Bound()
		header.Envelope = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	return &VectorLayer{Header: header, CRS: crs, Features: fromCollection(fc)}, nil
}

// geoJSONCRS reads the legacy "crs" member. Files without one are in
// WGS 84 per RFC 7946.
func geoJSONCRS(fc *geojson.FeatureCollection) (*CRS, error) {
	member, ok := fc.ExtraMembers["crs"].(map[string]interface{})
	if !ok {
		return WGS84(), nil
	}
	props, _ := member["properties"].(map[string]interface{})
	name, _ := props["name"].(string)
	if name == "" {
		return WGS84(), nil
	}
	return ParseCRS(name)
}

func fromCollection(fc *geojson.FeatureCollection) []*Feature {
	features := make([]*Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		props := f.Properties
		if props == nil {
			props = geojson.Properties{}
		}
		features = append(features, &Feature{
			Index:      len(features),
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return features
}
