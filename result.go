package zonalstats

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Record holds the statistics of one zone.
type Record struct {
	Index      int                `json:"index"`
	ID         any                `json:"id"`
	Properties geojson.Properties `json:"properties,omitempty"`
	Stats      Stats              `json:"stats"`
	Geometry   orb.Geometry       `json:"-"`
	Raster     *Masked            `json:"-"` // set when Options.RasterOut is true
}

// Kind classifies the outcome of a vector and raster pair.
type Kind int

const (
	KindStats Kind = iota
	KindCRSMismatch
	KindSourceError
)

func (k Kind) String() string {
	switch k {
	case KindStats:
		return "stats"
	case KindCRSMismatch:
		return "crs_mismatch"
	case KindSourceError:
		return "source_error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Skip records a zone left out of a result set.
type Skip struct {
	Index  int    `json:"index"`
	ID     any    `json:"id"`
	Reason string `json:"reason"`
}

// ResultSet is the outcome of one vector and raster pair. Only KindStats
// sets carry records.
type ResultSet struct {
	Vector  string    `json:"vector"`
	Raster  string    `json:"raster"`
	Kind    Kind      `json:"kind"`
	Comment string    `json:"comment"`
	Err     error     `json:"-"`
	CRS     *CRS      `json:"-"`
	Records []*Record `json:"records,omitempty"`
	Skipped []Skip    `json:"skipped,omitempty"`
}

// Features returns the records as GeoJSON features whose properties are
// the feature properties overlaid with the statistics.
func (rs *ResultSet) Features() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range rs.Records {
		f := geojson.NewFeature(r.Geometry)
		f.ID = r.ID
		props := make(geojson.Properties, len(r.Properties)+len(r.Stats))
		for k, v := range r.Properties {
			props[k] = v
		}
		for k, v := range r.Stats {
			if v == nil {
				props[k] = nil
				continue
			}
			props[k] = *v
		}
		f.Properties = props
		fc.Append(f)
	}
	return fc
}

// Pair names a vector and raster combination.
type Pair struct {
	Vector string
	Raster string
}

// Batch collects the result sets of several pairs in insertion order.
// Adding a pair again replaces its earlier result.
type Batch struct {
	Results []*ResultSet
	index   map[Pair]int
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{index: make(map[Pair]int)}
}

// Add stores rs under its pair.
func (b *Batch) Add(rs *ResultSet) {
	if b.index == nil {
		b.index = make(map[Pair]int)
	}
	p := Pair{rs.Vector, rs.Raster}
	if i, ok := b.index[p]; ok {
		b.Results[i] = rs
		return
	}
	b.index[p] = len(b.Results)
	b.Results = append(b.Results, rs)
}

// Get returns the result set of a pair.
func (b *Batch) Get(vector, raster string) (*ResultSet, bool) {
	i, ok := b.index[Pair{vector, raster}]
	if !ok {
		return nil, false
	}
	return b.Results[i], true
}

// Len returns the number of pairs.
func (b *Batch) Len() int { return len(b.Results) }

// Merge adds every result set of other.
func (b *Batch) Merge(other *Batch) {
	for _, rs := range other.Results {
		b.Add(rs)
	}
}

// Order sorts the results vector-major over the given paths. Pairs not
// named keep their relative order at the end.
func (b *Batch) Order(vectors, rasters []string) {
	ordered := make([]*ResultSet, 0, len(b.Results))
	taken := make(map[Pair]bool, len(b.Results))
	for _, v := range vectors {
		for _, r := range rasters {
			p := Pair{v, r}
			if rs, ok := b.Get(v, r); ok && !taken[p] {
				ordered = append(ordered, rs)
				taken[p] = true
			}
		}
	}
	for _, rs := range b.Results {
		if !taken[Pair{rs.Vector, rs.Raster}] {
			ordered = append(ordered, rs)
		}
	}
	b.Results = b.Results[:0]
	b.index = make(map[Pair]int, len(ordered))
	for _, rs := range ordered {
		b.Add(rs)
	}
}

// Records returns the number of records over all pairs.
func (b *Batch) Records() int {
	n := 0
	for _, rs := range b.Results {
		n += len(rs.Records)
	}
	return n
}
