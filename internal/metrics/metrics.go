// Package metrics wraps a small set of prometheus/client_golang collectors
// behind a Recorder interface, exercised by internal/server and
// internal/dispatch (grounded on the pack's prometheus/client_golang usage).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the observability seam the core depends on.
type Recorder interface {
	ConnectionAccepted()
	CommandDispatched(opcode string)
	ReplicaAttached()
	ReplicaDetached()
	FanOutFailure()
}

// Prometheus is the production Recorder.
type Prometheus struct {
	reg            *prometheus.Registry
	connections    prometheus.Counter
	commands       *prometheus.CounterVec
	replicas       prometheus.Gauge
	fanOutFailures prometheus.Counter
}

// NewPrometheus builds a fresh registry with the core's collectors and
// returns a Recorder backed by them.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Prometheus{
		reg: reg,
		connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "redisd_connections_accepted_total",
			Help: "Total number of inbound connections accepted.",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redisd_commands_dispatched_total",
			Help: "Total number of commands dispatched, by opcode.",
		}, []string{"opcode"}),
		replicas: factory.NewGauge(prometheus.GaugeOpts{
			Name: "redisd_replicas_attached",
			Help: "Number of replicas currently attached to this primary.",
		}),
		fanOutFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "redisd_fanout_failures_total",
			Help: "Total number of fan-outs in which at least one replica write failed.",
		}),
	}
}

func (p *Prometheus) ConnectionAccepted()         { p.connections.Inc() }
func (p *Prometheus) CommandDispatched(op string) { p.commands.WithLabelValues(op).Inc() }
func (p *Prometheus) ReplicaAttached()            { p.replicas.Inc() }
func (p *Prometheus) ReplicaDetached()            { p.replicas.Dec() }
func (p *Prometheus) FanOutFailure()              { p.fanOutFailures.Inc() }

// Handler returns the /metrics HTTP handler for this Recorder's registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Nop discards every observation, for tests and for processes run without
// --metrics-addr.
type Nop struct{}

func (Nop) ConnectionAccepted()        {}
func (Nop) CommandDispatched(string)   {}
func (Nop) ReplicaAttached()           {}
func (Nop) ReplicaDetached()           {}
func (Nop) FanOutFailure()             {}
