package zonalstats

import (
	"math"
	"sort"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

// Stats maps statistic names to values. A nil value is a null statistic.
type Stats map[string]*float64

// Get returns the value of a statistic and whether it is set and non-null.
func (s Stats) Get(name string) (float64, bool) {
	v, ok := s[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Request is a validated statistics request.
type Request struct {
	Stats       StatSet
	Categorical bool
	CategoryMap map[float64]string
	Prefix      string
	AddStats    map[string]StatFunc
}

// NewRequest validates the statistics part of opts. A categorical request
// without explicit statistics computes only the category counts.
func NewRequest(opts *Options) (*Request, error) {
	req := &Request{
		Categorical: opts.Categorical,
		CategoryMap: opts.CategoryMap,
		Prefix:      opts.Prefix,
		AddStats:    opts.AddStats,
	}
	if len(opts.Stats) == 0 && opts.Categorical {
		return req, nil
	}
	set, err := ParseStats(opts.Stats...)
	if err != nil {
		return nil, err
	}
	req.Stats = set
	return req, nil
}

// Compute evaluates req over the valid pixels of m.
func Compute(m *Masked, req *Request) Stats {
	return computeStats(m, req, nil)
}

func computeStats(m *Masked, req *Request, props geojson.Properties) Stats {
	out := make(Stats, len(req.Stats)+2)
	values := m.Values()

	if len(values) == 0 {
		for _, s := range req.Stats {
			out[s.Name()] = nil
		}
		if req.Stats.Has(StatCount) {
			out["count"] = float(0)
		}
	} else {
		z := newZone(m, values)
		if req.Categorical {
			for _, vc := range z.counts() {
				out[req.categoryKey(vc.value)] = float(float64(vc.count))
			}
		}
		for _, s := range req.Stats {
			if v, ok := z.stat(s); ok {
				out[s.Name()] = float(v)
			}
		}
	}

	if req.Stats.Has(StatNoData) {
		out["nodata"] = float(float64(m.NoData))
	}
	if req.Stats.Has(StatNaN) {
		out["nan"] = float(float64(m.NaN))
	}
	for name, fn := range req.AddStats {
		out[name] = fn(values, props)
	}

	if req.Prefix == "" {
		return out
	}
	prefixed := make(Stats, len(out))
	for k, v := range out {
		prefixed[req.Prefix+k] = v
	}
	return prefixed
}

func (r *Request) categoryKey(v float64) string {
	if name, ok := r.CategoryMap[v]; ok {
		return name
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func float(v float64) *float64 { return &v }

type valueCount struct {
	value float64
	count int
}

// zone holds the valid values of one zone and lazily derived views.
type zone struct {
	values []float64
	ints   []int64
	sorted []float64
	pixels []valueCount
}

func newZone(m *Masked, values []float64) *zone {
	return &zone{values: values, ints: m.Ints()}
}

func (z *zone) stat(s Stat) (float64, bool) {
	switch s.Kind {
	case StatCount:
		return float64(len(z.values)), true
	case StatMin:
		return z.sortedValues()[0], true
	case StatMax:
		sv := z.sortedValues()
		return sv[len(sv)-1], true
	case StatMean:
		return z.sum() / float64(len(z.values)), true
	case StatSum:
		return z.sum(), true
	case StatStd:
		return z.std(), true
	case StatMedian:
		return percentile(z.sortedValues(), 50), true
	case StatPercentile:
		return percentile(z.sortedValues(), s.Q), true
	case StatMajority:
		return z.majority(), true
	case StatMinority:
		return z.minority(), true
	case StatUnique:
		return float64(len(z.counts())), true
	case StatRange:
		sv := z.sortedValues()
		return sv[len(sv)-1] - sv[0], true
	}
	return 0, false
}

// sum adds integer data in int64 so it cannot overflow narrower sample
// types.
func (z *zone) sum() float64 {
	if z.ints != nil {
		var s int64
		for _, v := range z.ints {
			s += v
		}
		return float64(s)
	}
	var s float64
	for _, v := range z.values {
		s += v
	}
	return s
}

// std is the population standard deviation.
func (z *zone) std() float64 {
	mean := z.sum() / float64(len(z.values))
	var ss float64
	for _, v := range z.values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(z.values)))
}

func (z *zone) sortedValues() []float64 {
	if z.sorted == nil {
		z.sorted = append([]float64(nil), z.values...)
		sort.Float64s(z.sorted)
	}
	return z.sorted
}

// counts returns the pixel count per distinct value, in ascending value
// order.
func (z *zone) counts() []valueCount {
	if z.pixels != nil {
		return z.pixels
	}
	for _, v := range z.sortedValues() {
		if n := len(z.pixels); n > 0 && z.pixels[n-1].value == v {
			z.pixels[n-1].count++
			continue
		}
		z.pixels = append(z.pixels, valueCount{value: v, count: 1})
	}
	return z.pixels
}

// majority returns the most frequent value. Ties go to the smallest value.
func (z *zone) majority() float64 {
	best := z.counts()[0]
	for _, vc := range z.counts()[1:] {
		if vc.count > best.count {
			best = vc
		}
	}
	return best.value
}

// minority returns the least frequent value. Ties go to the smallest value.
func (z *zone) minority() float64 {
	best := z.counts()[0]
	for _, vc := range z.counts()[1:] {
		if vc.count < best.count {
			best = vc
		}
	}
	return best.value
}

// percentile interpolates linearly between the closest ranks of sorted
// values.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := float64(len(sorted)-1) * q / 100
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
