package zonalstats

import (
	"fmt"
	"os"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Reader reads zones from a FlatGeobuf file held in memory.
type Reader struct {
	fgb *flatgeobuf.FlatGeoBuf
}

// NewReader reads the file at path.
func NewReader(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewReaderFromData(data)
}

// NewReaderFromData parses an in-memory FlatGeobuf file.
func NewReaderFromData(data []byte) (*Reader, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if fgb.Header() == nil {
		return nil, ErrInvalidData
	}
	return &Reader{fgb: fgb}, nil
}

// Header returns the layer metadata. A CRS stored with a code but no
// organisation is taken to be EPSG.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
	}
	if h.EnvelopeLength() >= 4 {
		for i := range header.Envelope {
			header.Envelope[i] = h.Envelope(i)
		}
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		c := &CRS{
			Org:         string(crs.Org()),
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
			WKT:         string(crs.Wkt()),
		}
		if c.Code > 0 && c.Org == "" {
			c.Org = "EPSG"
		}
		if !c.empty() {
			header.CRS = c
		}
	}

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if !h.Columns(&col, i) {
			continue
		}
		header.Columns = append(header.Columns, ColumnInfo{
			Name:        string(col.Name()),
			Type:        flattypes.EnumNamesColumnType[col.Type()],
			Title:       string(col.Title()),
			Description: string(col.Description()),
			Nullable:    col.Nullable(),
		})
	}
	return header
}

// Layer reads every feature as a zone layer. Zones are numbered in file
// order, which for indexed files is the Hilbert order of the index.
func (r *Reader) Layer() (*VectorLayer, error) {
	fc, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	header := r.Header()
	return &VectorLayer{Header: header, CRS: header.CRS, Features: fromCollection(fc)}, nil
}

// ReadAll reads all features as a FeatureCollection. The upstream reader
// only reaches features through the spatial index, so a non-empty file
// without one yields ErrNoIndex.
func (r *Reader) ReadAll() (*geojson.FeatureCollection, error) {
	h := r.fgb.Header()
	if h.FeaturesCount() == 0 {
		return geojson.NewFeatureCollection(), nil
	}
	if h.IndexNodeSize() == 0 || h.EnvelopeLength() < 4 {
		return nil, ErrNoIndex
	}
	return r.Search(orb.Bound{
		Min: orb.Point{h.Envelope(0), h.Envelope(1)},
		Max: orb.Point{h.Envelope(2), h.Envelope(3)},
	})
}

// Search returns the features whose bounding boxes intersect bounds.
func (r *Reader) Search(bounds orb.Bound) (*geojson.FeatureCollection, error) {
	h := r.fgb.Header()
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	found, err := r.fgb.Search(bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	fc := geojson.NewFeatureCollection()
	for _, f := range found {
		if f != nil {
			fc.Append(featureFromFGB(f, h))
		}
	}
	return fc, nil
}

// Close releases the file contents.
func (r *Reader) Close() error {
	r.fgb = nil
	return nil
}

// featureFromFGB decodes one feature. A feature without geometry keeps its
// properties and a nil geometry.
func featureFromFGB(f *flattypes.Feature, h *flattypes.Header) *geojson.Feature {
	var g flattypes.Geometry
	var geom orb.Geometry
	if fg := f.Geometry(&g); fg != nil {
		geom = geometryFromFGB(fg)
	}
	out := &geojson.Feature{Type: "Feature", Geometry: geom, Properties: geojson.Properties{}}

	if n := f.PropertiesLength(); n > 0 && h.ColumnsLength() > 0 {
		raw := make([]byte, n)
		for i := range raw {
			raw[i] = byte(f.Properties(i))
		}
		if props := decodeProperties(raw, h); props != nil {
			out.Properties = props
		}
	}
	return out
}
