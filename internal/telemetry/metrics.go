// Package telemetry holds the Prometheus instruments for turns, interpreter
// launches and slide-command traffic.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voiceforth"

// Turn outcomes recorded on TurnsTotal.
const (
	OutcomeLocked      = "locked"
	OutcomeUnlocked    = "unlocked"
	OutcomeThrottled   = "throttled"
	OutcomeControl     = "control"
	OutcomeInterpreted = "interpreted"
	OutcomeUnavailable = "unavailable"
	OutcomeAbandoned   = "abandoned"
)

// Metrics groups every instrument. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	TurnsTotal          *prometheus.CounterVec
	TurnDuration        prometheus.Histogram
	InterpreterLaunches prometheus.Counter
	InterpreterExits    prometheus.Counter
	SlideCommands       *prometheus.CounterVec
	SlideListeners      prometheus.Gauge
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversational turns handled, by outcome.",
		}, []string{"outcome"}),
		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interpreter_turn_seconds",
			Help:      "Wall time of turns that wrote to the interpreter, settle delay included.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		InterpreterLaunches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpreter_launches_total",
			Help:      "Interpreter processes started.",
		}),
		InterpreterExits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpreter_exits_total",
			Help:      "Interpreter processes observed exiting.",
		}),
		SlideCommands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slide_commands_total",
			Help:      "Slide commands posted, by tag and delivery.",
		}, []string{"tag", "delivery"}),
		SlideListeners: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slide_listeners",
			Help:      "Long polls currently waiting for a slide command.",
		}),
	}
}

func (m *Metrics) Turn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TurnTook(d time.Duration) {
	if m == nil {
		return
	}
	m.TurnDuration.Observe(d.Seconds())
}

func (m *Metrics) Launched() {
	if m == nil {
		return
	}
	m.InterpreterLaunches.Inc()
}

func (m *Metrics) Exited() {
	if m == nil {
		return
	}
	m.InterpreterExits.Inc()
}

// SlidePosted records a command; delivery is "live" when listeners were
// waiting and "pending" when it was parked in the mailbox.
func (m *Metrics) SlidePosted(tag, delivery string) {
	if m == nil {
		return
	}
	m.SlideCommands.WithLabelValues(tag, delivery).Inc()
}

func (m *Metrics) Listeners(n int) {
	if m == nil {
		return
	}
	m.SlideListeners.Set(float64(n))
}
