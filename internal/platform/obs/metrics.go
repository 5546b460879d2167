package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds pipeline counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	GeocodeLookups *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	PatchOps       *prometheus.CounterVec
	Findings       *prometheus.GaugeVec
}

// NewMetrics registers the pipeline metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GeocodeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "partners_geocode_lookups_total",
			Help: "External geocode calls by outcome (resolved, not_found, error).",
		}, []string{"outcome"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "partners_geocode_cache_lookups_total",
			Help: "Geocode cache lookups by result (hit, miss).",
		}, []string{"result"}),
		PatchOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "partners_patch_operations_total",
			Help: "Applied patch operations by kind and outcome (changed, noop, failed).",
		}, []string{"op", "outcome"}),
		Findings: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "partners_validation_findings",
			Help: "Findings from the most recent validation by code.",
		}, []string{"code"}),
	}
}

func (m *Metrics) ObserveGeocode(outcome string) {
	if m == nil {
		return
	}
	m.GeocodeLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePatch(op, outcome string) {
	if m == nil {
		return
	}
	m.PatchOps.WithLabelValues(op, outcome).Inc()
}

// SetFindings replaces the findings gauge with the given counts.
func (m *Metrics) SetFindings(counts map[string]int) {
	if m == nil {
		return
	}
	m.Findings.Reset()
	for code, n := range counts {
		m.Findings.WithLabelValues(code).Set(float64(n))
	}
}
