package zonalstats

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/tingold/orb-zonalstats/raster"
)

// Extractor runs zonal statistics over every combination of a list of
// vector and raster files. Vector layers are cached between pairs. An
// Extractor is not safe for concurrent use; run one per goroutine.
type Extractor struct {
	opts    Options
	cache   *GeometryCache
	log     *zerolog.Logger
	metrics *Metrics
}

// NewExtractor validates opts and returns an Extractor. A nil opts uses
// DefaultOptions.
func NewExtractor(opts *Options) (*Extractor, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if _, err := NewRequest(opts); err != nil {
		return nil, err
	}
	if opts.Preprocess != nil {
		if err := opts.Preprocess.Validate(); err != nil {
			return nil, err
		}
	}
	size := opts.CacheSize
	if size == 0 {
		size = DefaultOptions().CacheSize
	}
	return &Extractor{
		opts:    *opts,
		cache:   NewGeometryCache(size, opts.Metrics),
		log:     opts.logger(),
		metrics: opts.Metrics,
	}, nil
}

// Cache returns the geometry cache of the extractor.
func (e *Extractor) Cache() *GeometryCache { return e.cache }

// Extract processes every vector against every raster, vector-major. The
// geometry cache is trimmed to the vectors of this batch before it starts
// and emptied when it ends.
func (e *Extractor) Extract(vectors, rasters []string) *Batch {
	e.cache.Retain(vectors)
	defer e.cache.Purge()

	b := NewBatch()
	for _, v := range vectors {
		for _, r := range rasters {
			b.Add(e.ExtractPair(v, r))
		}
	}
	e.log.Info().
		Int("vectors", len(vectors)).
		Int("rasters", len(rasters)).
		Int("records", b.Records()).
		Msg("batch complete")
	return b
}

// ExtractPair computes the statistics of one vector file over one raster
// file. Failures are reported in the returned set rather than as an error:
// a CRS mismatch gives KindCRSMismatch, an unusable source KindSourceError.
// Zones without valid pixels are listed in Skipped.
func (e *Extractor) ExtractPair(vector, rasterPath string) *ResultSet {
	start := time.Now()
	rs := &ResultSet{Vector: vector, Raster: rasterPath}
	log := e.log.With().Str("vector", vector).Str("raster", rasterPath).Logger()
	defer func() { e.metrics.pair(rs.Kind, time.Since(start)) }()

	layer, err := e.cache.Load(vector)
	if err != nil {
		return e.fail(&log, rs, err)
	}
	rs.CRS = layer.CRS

	ds, err := raster.Open(rasterPath)
	if err != nil {
		return e.fail(&log, rs, &DataSourceError{Source: rasterPath, Err: err})
	}
	defer ds.Close()

	rcrs, err := ParseCRS(ds.SpatialRef())
	if err != nil {
		return e.fail(&log, rs, &DataSourceError{Source: rasterPath, Err: err})
	}
	vname, rname := filepath.Base(vector), filepath.Base(rasterPath)
	if ok, issue := CheckCRS(layer.CRS, rcrs); !ok {
		rs.Kind = KindCRSMismatch
		rs.Err = ErrCRSMismatch
		rs.Comment = fmt.Sprintf("Could not process %s with %s.\n%s", rname, vname, issue)
		log.Warn().Str("issue", issue).Msg("skipping pair")
		return rs
	}

	z, err := newZoner(ds, &e.opts)
	if err != nil {
		return e.fail(&log, rs, &DataSourceError{Source: rasterPath, Err: err})
	}
	if err := checkIDField(layer, e.opts.IDField); err != nil {
		return e.fail(&log, rs, err)
	}

	for _, f := range layer.Features {
		rec, valid, err := z.zone(f)
		switch {
		case err != nil:
			rs.Skipped = append(rs.Skipped, Skip{Index: f.Index, ID: e.featureID(f), Reason: err.Error()})
			e.metrics.zone("error")
			log.Debug().Err(err).Int("feature", f.Index).Msg("zone failed")
		case valid == 0:
			rs.Skipped = append(rs.Skipped, Skip{Index: f.Index, ID: rec.ID, Reason: "no valid pixels"})
			e.metrics.zone("empty")
		default:
			rs.Records = append(rs.Records, rec)
			e.metrics.zone("computed")
		}
	}

	rs.Kind = KindStats
	rs.Comment = fmt.Sprintf("# Extracted from %s using %s", rname, vname)
	if p := e.opts.Preprocess; p != nil {
		rs.Comment += fmt.Sprintf("\n# Preprocessed using %s", p)
	}
	log.Info().
		Int("records", len(rs.Records)).
		Int("skipped", len(rs.Skipped)).
		Dur("took", time.Since(start)).
		Msg("pair complete")
	return rs
}

func (e *Extractor) fail(log *zerolog.Logger, rs *ResultSet, err error) *ResultSet {
	rs.Kind = KindSourceError
	rs.Err = err
	rs.Comment = fmt.Sprintf("Could not process %s with %s.\n%s", filepath.Base(rs.Raster), filepath.Base(rs.Vector), err)
	var dse *DataSourceError
	if errors.As(err, &dse) {
		log.Error().Err(dse.Err).Str("source", dse.Source).Msg("unusable source")
	} else {
		log.Error().Err(err).Msg("pair failed")
	}
	return rs
}

func (e *Extractor) featureID(f *Feature) any {
	id, _ := f.ID(e.opts.IDField)
	return id
}
