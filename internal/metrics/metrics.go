// Package metrics exposes interpreter counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Action outcomes.
const (
	OutcomeEffect = "effect"
	OutcomeNoop   = "noop"
	OutcomeError  = "error"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	actions     *prometheus.CounterVec
	timersFired prometheus.Counter
	loopTicks   prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptcord_actions_total",
				Help: "Executed actions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		timersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scriptcord_timers_fired_total",
			Help: "Timers executed after their due time",
		}),
		loopTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scriptcord_loop_ticks_total",
			Help: "Completed periodic loop ticks",
		}),
	}
	m.registry.MustRegister(m.actions, m.timersFired, m.loopTicks)
	return m
}

// ObserveAction counts one action execution.
func (m *Metrics) ObserveAction(kind, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, outcome).Inc()
}

// TimersFired adds n executed timers.
func (m *Metrics) TimersFired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.timersFired.Add(float64(n))
}

// LoopTick counts one loop tick.
func (m *Metrics) LoopTick() {
	if m == nil {
		return
	}
	m.loopTicks.Inc()
}

// TrackBindings registers a gauge reporting the interaction registry size.
func (m *Metrics) TrackBindings(size func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "scriptcord_interaction_bindings",
		Help: "Registered interactive controls",
	}, func() float64 { return float64(size()) }))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
