package zonalstats

import (
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WriteOptions configures FlatGeobuf output.
type WriteOptions struct {
	Name         string // Layer name
	Description  string // Layer description
	IncludeIndex bool   // Write a packed Hilbert R-tree (reorders features)
	CRS          *CRS   // Output CRS
}

// DefaultWriteOptions returns options that write a spatial index, which
// Reader.ReadAll needs to iterate the file.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{IncludeIndex: true}
}

// WriteResults writes the records of rs as FlatGeobuf features. Feature
// properties and statistics become columns; null statistics are omitted
// from the feature. The layer takes the CRS of rs unless opts sets one.
func WriteResults(w io.Writer, rs *ResultSet, opts *WriteOptions) error {
	if opts == nil {
		opts = DefaultWriteOptions()
	}
	o := *opts
	if o.CRS == nil {
		o.CRS = rs.CRS
	}
	if o.Description == "" {
		o.Description = rs.Comment
	}
	return WriteFeatures(w, rs.Features(), &o)
}

// WriteFeatures writes a FeatureCollection to FlatGeobuf format. Features
// without a geometry are skipped.
func WriteFeatures(w io.Writer, fc *geojson.FeatureCollection, opts *WriteOptions) error {
	if opts == nil {
		opts = DefaultWriteOptions()
	}
	if fc == nil || len(fc.Features) == 0 {
		return ErrNilGeometry
	}

	geoms := make([]orb.Geometry, 0, len(fc.Features))
	props := make([]geojson.Properties, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		geoms = append(geoms, f.Geometry)
		props = append(props, f.Properties)
	}

	gen := &featureCollectionGenerator{
		features: fc.Features,
		schema:   inferSchema(props),
	}
	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(layerGeometryType(geoms))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}
	if len(gen.schema) > 0 {
		header.SetColumns(writerColumns(gen.schema, builder))
	}
	if c := opts.CRS; c != nil && !c.empty() {
		crs := writer.NewCrs(builder)
		if c.Org != "" {
			crs.SetOrg(c.Org)
		}
		if c.Code > 0 {
			crs.SetCode(int32(c.Code))
		}
		if c.Name != "" {
			crs.SetName(c.Name)
		}
		// WKT is kept in the description when there is no other text
		switch {
		case c.Description != "":
			crs.SetDescription(c.Description)
		case c.WKT != "":
			crs.SetDescription(c.WKT)
		}
		header.SetCrs(crs)
	}

	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)
	_, err := fgbWriter.Write(w)
	return err
}

// featureCollectionGenerator generates features from a FeatureCollection.
type featureCollectionGenerator struct {
	features []*geojson.Feature
	schema   []column
	index    int
}

func (g *featureCollectionGenerator) Generate() *writer.Feature {
	for g.index < len(g.features) {
		f := g.features[g.index]
		g.index++
		if f == nil || f.Geometry == nil {
			continue
		}

		builder := flatbuffers.NewBuilder(1024)
		fgbGeom := geometryToFGB(f.Geometry, builder)
		if fgbGeom == nil {
			continue
		}
		feature := writer.NewFeature(builder)
		feature.SetGeometry(fgbGeom)
		if len(g.schema) > 0 {
			if data := encodeProperties(f.Properties, g.schema); len(data) > 0 {
				feature.SetProperties(data)
			}
		}
		return feature
	}
	return nil
}
