package zonalstats

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// PreprocessKind selects an outlier filter.
type PreprocessKind string

const (
	// PreprocessStdDev keeps values within Value standard deviations of
	// the zone mean, bounds included.
	PreprocessStdDev PreprocessKind = "std-dev"
	// PreprocessPercentile keeps values at or below the Value-th
	// percentile of the zone.
	PreprocessPercentile PreprocessKind = "percentile"
)

// UnmarshalJSON accepts the long names and the legacy SD and PC codes.
func (k *PreprocessKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreprocess, err)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "std-dev", "sd":
		*k = PreprocessStdDev
	case "percentile", "pc":
		*k = PreprocessPercentile
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPreprocess, s)
	}
	return nil
}

// Preprocess is an outlier filter applied to the valid pixels of each zone
// before statistics are computed.
type Preprocess struct {
	Kind  PreprocessKind `json:"kind"`
	Value float64        `json:"value"`
}

// ParsePreprocess decodes and validates a JSON preprocess descriptor such
// as {"kind": "std-dev", "value": 2}.
func ParsePreprocess(data []byte) (*Preprocess, error) {
	var p Preprocess
	if err := json.Unmarshal(data, &p); err != nil {
		if errors.Is(err, ErrInvalidPreprocess) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreprocess, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the kind and the range of Value.
func (p *Preprocess) Validate() error {
	switch p.Kind {
	case PreprocessStdDev:
		if p.Value < 0 || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("%w: std-dev factor %v", ErrInvalidPreprocess, p.Value)
		}
	case PreprocessPercentile:
		if !(p.Value >= 0 && p.Value <= 100) {
			return fmt.Errorf("%w: percentile %v", ErrInvalidPreprocess, p.Value)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPreprocess, p.Kind)
	}
	return nil
}

// String formats the filter as "kind : value".
func (p *Preprocess) String() string {
	return string(p.Kind) + " : " + strconv.FormatFloat(p.Value, 'f', -1, 64)
}

// Apply excludes the outliers of m. A zone without valid pixels is left
// untouched.
func (p *Preprocess) Apply(m *Masked) {
	values := m.Values()
	if len(values) == 0 {
		return
	}
	switch p.Kind {
	case PreprocessStdDev:
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		var ss float64
		for _, v := range values {
			ss += (v - mean) * (v - mean)
		}
		k := p.Value * math.Sqrt(ss/float64(len(values)))
		lo, hi := mean-k, mean+k
		m.Filter(func(v float64) bool { return v >= lo && v <= hi })
	case PreprocessPercentile:
		sort.Float64s(values)
		limit := percentile(values, p.Value)
		m.Filter(func(v float64) bool { return v <= limit })
	}
}
