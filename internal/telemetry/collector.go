package telemetry

import (
	"net/http"

	"github.com/KevinKickass/ProductionPulse/internal/eventlog"
	"github.com/KevinKickass/ProductionPulse/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exports event log activity as Prometheus metrics on its own registry.
type Collector struct {
	registry            *prometheus.Registry
	productionUnits     prometheus.Counter
	mutations           *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec
	machineStopped      prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		productionUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_production_units_total",
			Help: "Empanadas recorded, manual and demo.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_mutations_total",
			Help: "Committed event log mutations by kind.",
		}, []string{"kind"}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_persistence_failures_total",
			Help: "Failed snapshot loads and saves.",
		}, []string{"op"}),
		machineStopped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_machine_stopped",
			Help: "1 while a downtime interval is open.",
		}),
	}
	c.registry.MustRegister(
		c.productionUnits,
		c.mutations,
		c.persistenceFailures,
		c.machineStopped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Observe is an eventlog.Listener.
func (c *Collector) Observe(ch eventlog.Change) {
	c.mutations.WithLabelValues(string(ch.Kind)).Inc()
	if ch.Production != nil {
		c.productionUnits.Add(float64(ch.Production.Count))
	}
	c.SetStatus(ch.State.Machine.Status)
}

func (c *Collector) SetStatus(status types.MachineStatus) {
	if status == types.StatusStopped {
		c.machineStopped.Set(1)
		return
	}
	c.machineStopped.Set(0)
}

func (c *Collector) ObservePersistenceFailure(op string) {
	c.persistenceFailures.WithLabelValues(op).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
