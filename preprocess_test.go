package zonalstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreprocess(t *testing.T) {
	tests := []struct {
		in   string
		kind PreprocessKind
		val  float64
	}{
		{`{"kind":"std-dev","value":1}`, PreprocessStdDev, 1},
		{`{"kind":"SD","value":2.5}`, PreprocessStdDev, 2.5},
		{`{"kind":"percentile","value":90}`, PreprocessPercentile, 90},
		{`{"kind":"PC","value":10}`, PreprocessPercentile, 10},
	}
	for _, tt := range tests {
		p, err := ParsePreprocess([]byte(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.kind, p.Kind)
		assert.Equal(t, tt.val, p.Value)
	}
}

func TestParsePreprocess_Invalid(t *testing.T) {
	for _, in := range []string{
		`{"kind":"zscore","value":1}`,
		`{"kind":"percentile","value":101}`,
		`{"kind":"std-dev","value":-1}`,
		`{"value":1}`,
		`not json`,
	} {
		_, err := ParsePreprocess([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidPreprocess, in)
	}
}

func TestPreprocess_String(t *testing.T) {
	p := &Preprocess{Kind: PreprocessStdDev, Value: 1.5}
	assert.Equal(t, "std-dev : 1.5", p.String())
}

func TestPreprocess_StdDevDropsOutlier(t *testing.T) {
	m := maskedFloats(t, 1, 1, 1, 1, 1, 1, 100)
	p := &Preprocess{Kind: PreprocessStdDev, Value: 1}
	p.Apply(m)

	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1}, m.Values())
	s := Compute(m, request(t, "mean count"))
	assert.Equal(t, 1.0, stat(t, s, "mean"))
	assert.Equal(t, 6.0, stat(t, s, "count"))
}

func TestPreprocess_StdDevBoundsInclusive(t *testing.T) {
	// mean 2, population sd 1: with K=1 both 1 and 3 sit on the bounds
	m := maskedFloats(t, 1, 3, 1, 3)
	p := &Preprocess{Kind: PreprocessStdDev, Value: 1}
	p.Apply(m)
	assert.Equal(t, 4, m.Valid())
}

func TestPreprocess_Percentile(t *testing.T) {
	m := maskedFloats(t, 5, 1, 4, 2, 3)
	p := &Preprocess{Kind: PreprocessPercentile, Value: 50}
	p.Apply(m)
	assert.Equal(t, []float64{1, 2, 3}, m.Values())
}

func TestPreprocess_EmptyZone(t *testing.T) {
	m := Compose(floatBlock(t, []float64{1, 2}, nil), nil)
	p := &Preprocess{Kind: PreprocessPercentile, Value: 50}
	p.Apply(m)
	assert.Zero(t, m.Valid())
}
