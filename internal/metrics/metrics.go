// Package metrics exports per-group scheduling metrics to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/heater-share/internal/group"
)

const namespace = "heater_share"

// Metrics is a group observer that records every cycle report.
type Metrics struct {
	cycles     *prometheus.CounterVec
	degenerate *prometheus.CounterVec
	requested  *prometheus.GaugeVec
	realized   *prometheus.GaugeVec
	boxUsage   *prometheus.GaugeVec
	active     *prometheus.GaugeVec
	elapsed    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Scheduling cycles run per group.",
		}, []string{"group"}),
		degenerate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_cycles_total",
			Help:      "Cycles too short for the switching overhead, run with unscaled duty.",
		}, []string{"group"}),
		requested: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heater_requested_duty",
			Help:      "Duty cycle requested by the heater's control loop.",
		}, []string{"group", "heater"}),
		realized: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heater_realized_duty",
			Help:      "Fraction of the cycle the heater is powered, weighted by power level.",
		}, []string{"group", "heater"}),
		boxUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "box_usage",
			Help:      "Summed duty of the heaters packed into each box.",
		}, []string{"group", "box"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_heaters",
			Help:      "Heaters given power in the last cycle.",
		}, []string{"group"}),
		elapsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent planning and applying a cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"group"}),
	}
	reg.MustRegister(m.cycles, m.degenerate, m.requested, m.realized, m.boxUsage, m.active, m.elapsed)
	return m
}

// CycleComplete records r.
func (m *Metrics) CycleComplete(r group.Report) {
	m.cycles.WithLabelValues(r.Group).Inc()
	if len(r.Warnings) > 0 {
		m.degenerate.WithLabelValues(r.Group).Inc()
	}
	m.active.WithLabelValues(r.Group).Set(float64(r.Active()))
	m.elapsed.WithLabelValues(r.Group).Observe(r.Elapsed.Seconds())

	// Box count follows max_active, which can change between cycles.
	m.boxUsage.DeletePartialMatch(prometheus.Labels{"group": r.Group})
	for _, b := range r.Boxes {
		m.boxUsage.WithLabelValues(r.Group, strconv.Itoa(b.Index)).Set(b.Usage)
	}
	for _, h := range r.Heaters {
		m.requested.WithLabelValues(r.Group, h.Name).Set(h.Duty)
		m.realized.WithLabelValues(r.Group, h.Name).Set(h.Realized)
	}
}
