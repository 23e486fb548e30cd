package zonalstats

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

// StatKind identifies a statistic.
type StatKind int

const (
	StatCount StatKind = iota
	StatMin
	StatMax
	StatMean
	StatSum
	StatStd
	StatMedian
	StatMajority
	StatMinority
	StatUnique
	StatRange
	StatNoData
	StatNaN
	StatPercentile
)

var statNames = map[string]StatKind{
	"count":    StatCount,
	"min":      StatMin,
	"max":      StatMax,
	"mean":     StatMean,
	"sum":      StatSum,
	"std":      StatStd,
	"median":   StatMedian,
	"majority": StatMajority,
	"minority": StatMinority,
	"unique":   StatUnique,
	"range":    StatRange,
	"nodata":   StatNoData,
	"nan":      StatNaN,
}

// DefaultStats are computed when no statistics are requested.
var DefaultStats = []string{"count", "min", "max", "mean"}

// AllStats is the expansion of "*" and "ALL", indexed by StatKind.
var AllStats = []string{
	"count", "min", "max", "mean", "sum", "std", "median",
	"majority", "minority", "unique", "range", "nodata", "nan",
}

const percentilePrefix = "percentile_"

// Stat is one requested statistic. Q is the percentile (0-100) of a
// StatPercentile and Label the spelling it was requested with.
type Stat struct {
	Kind  StatKind
	Q     float64
	Label string
}

// Name returns the output key of the statistic, without prefix. A
// percentile keeps the spelling it was requested with.
func (s Stat) Name() string {
	if s.Kind == StatPercentile {
		if s.Label != "" {
			return s.Label
		}
		return percentilePrefix + strconv.FormatFloat(s.Q, 'f', -1, 64)
	}
	if int(s.Kind) < len(AllStats) {
		return AllStats[s.Kind]
	}
	return ""
}

// StatSet is an ordered, duplicate free list of statistics.
type StatSet []Stat

// ParseStats validates statistic names. Each argument may hold several
// names separated by spaces. "*" or "ALL" selects every fixed statistic,
// no names select DefaultStats. Percentiles are written percentile_Q with
// Q in [0, 100].
func ParseStats(names ...string) (StatSet, error) {
	var fields []string
	for _, n := range names {
		fields = append(fields, strings.Fields(n)...)
	}
	if len(fields) == 0 {
		fields = DefaultStats
	}

	var set StatSet
	seen := make(map[string]bool)
	add := func(s Stat) {
		if name := s.Name(); !seen[name] {
			seen[name] = true
			set = append(set, s)
		}
	}
	for _, f := range fields {
		if f == "*" || f == "ALL" {
			for _, name := range AllStats {
				add(Stat{Kind: statNames[name]})
			}
			continue
		}
		s, err := parseStat(f)
		if err != nil {
			return nil, err
		}
		add(s)
	}
	return set, nil
}

func parseStat(name string) (Stat, error) {
	if k, ok := statNames[name]; ok {
		return Stat{Kind: k}, nil
	}
	if q, ok := strings.CutPrefix(name, percentilePrefix); ok {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil || !(v >= 0 && v <= 100) {
			return Stat{}, fmt.Errorf("%w: %q (percentile must be in [0, 100])", ErrUnknownStat, name)
		}
		return Stat{Kind: StatPercentile, Q: v, Label: name}, nil
	}
	if near := closestStat(name); near != "" {
		return Stat{}, fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownStat, name, near)
	}
	return Stat{}, fmt.Errorf("%w: %q", ErrUnknownStat, name)
}

// closestStat returns the fixed statistic name within two edits of name,
// or "" when there is none.
func closestStat(name string) string {
	best, bestDist := "", 3
	for _, s := range AllStats {
		if d := levenshtein.ComputeDistance(strings.ToLower(name), s); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

// Has reports whether the set contains a statistic of kind k.
func (s StatSet) Has(k StatKind) bool {
	for _, st := range s {
		if st.Kind == k {
			return true
		}
	}
	return false
}

// Names returns the output keys in request order.
func (s StatSet) Names() []string {
	out := make([]string, len(s))
	for i, st := range s {
		out[i] = st.Name()
	}
	return out
}

func (s StatSet) needsCounts() bool {
	return s.Has(StatMajority) || s.Has(StatMinority) || s.Has(StatUnique)
}
