package zonalstats

import (
	"fmt"

	"github.com/tingold/orb-zonalstats/raster"
)

// ZonalStats computes statistics of one band of ds for every feature of
// layer. It returns one record per feature in layer order; zones without
// valid pixels get null statistics and a count of 0.
func ZonalStats(layer *VectorLayer, ds raster.Dataset, opts *Options) ([]*Record, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	z, err := newZoner(ds, opts)
	if err != nil {
		return nil, err
	}
	if err := checkIDField(layer, opts.IDField); err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(layer.Features))
	for _, f := range layer.Features {
		rec, _, err := z.zone(f)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// zoner computes the record of one feature against an open raster.
type zoner struct {
	ds   raster.Dataset
	band int
	req  *Request
	opts *Options
}

func newZoner(ds raster.Dataset, opts *Options) (*zoner, error) {
	req, err := NewRequest(opts)
	if err != nil {
		return nil, err
	}
	band := opts.Band
	if band == 0 {
		band = 1
	}
	if band < 1 || band > ds.Bands() {
		return nil, fmt.Errorf("%w: %d of %d", raster.ErrBandOutOfRange, band, ds.Bands())
	}
	if opts.NoData != nil {
		ds = raster.WithNoData(ds, *opts.NoData)
	}
	return &zoner{ds: ds, band: band, req: req, opts: opts}, nil
}

// zone returns the record of f and the number of valid pixels before any
// zone function or preprocess filter ran.
func (z *zoner) zone(f *Feature) (*Record, int, error) {
	id, err := f.ID(z.opts.IDField)
	if err != nil {
		return nil, 0, err
	}
	rec := &Record{Index: f.Index, ID: id, Properties: f.Properties, Geometry: f.Geometry}

	m, err := z.mask(f)
	if err != nil {
		return nil, 0, err
	}
	valid := m.Valid()
	if z.opts.ZoneFunc != nil {
		z.opts.ZoneFunc(m)
	}
	if z.opts.Preprocess != nil {
		z.opts.Preprocess.Apply(m)
	}

	rec.Stats = computeStats(m, z.req, f.Properties)
	if z.opts.RasterOut {
		rec.Raster = m
	}
	return rec, valid, nil
}

func (z *zoner) mask(f *Feature) (*Masked, error) {
	if f.Geometry == nil {
		return emptyMasked(z.ds), nil
	}
	geom := BoxPoints(f.Geometry, z.ds.Transform())
	block, err := raster.ReadBounds(z.ds, z.band, geom.Bound())
	if err != nil {
		return nil, err
	}
	cov := Rasterize(geom, block.Rows(), block.Cols(), block.Transform, z.opts.AllTouched)
	return Compose(block, cov), nil
}

func checkIDField(layer *VectorLayer, field string) error {
	if field == "" {
		return nil
	}
	for _, f := range layer.Features {
		if _, err := f.ID(field); err != nil {
			return &DataSourceError{Source: layer.Source, Err: err}
		}
	}
	return nil
}
