package zonalstats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated during extraction. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Pairs        *prometheus.CounterVec
	Zones        *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	PairDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Pairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zonalstats",
			Name:      "pairs_total",
			Help:      "Vector and raster pairs processed, by outcome.",
		}, []string{"outcome"}),
		Zones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zonalstats",
			Name:      "zones_total",
			Help:      "Zones processed, by outcome.",
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zonalstats",
			Name:      "geometry_cache_lookups_total",
			Help:      "Geometry cache lookups, by result.",
		}, []string{"result"}),
		PairDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zonalstats",
			Name:      "pair_duration_seconds",
			Help:      "Time to process one vector and raster pair.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Pairs, m.Zones, m.CacheLookups, m.PairDuration)
	}
	return m
}

func (m *Metrics) pair(k Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.Pairs.WithLabelValues(k.String()).Inc()
	m.PairDuration.Observe(d.Seconds())
}

func (m *Metrics) zone(outcome string) {
	if m == nil {
		return
	}
	m.Zones.WithLabelValues(outcome).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
