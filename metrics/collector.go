// Package metrics exposes bridge activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blendermcp"

// Collector implements command.Observer and csm.Observer.
type Collector struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	csmRequests     *prometheus.CounterVec
	leader          prometheus.Gauge
}

// NewCollector registers the bridge metrics on reg, or on a fresh registry when reg is nil.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		commandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands handled by the dispatcher, by outcome",
			},
			[]string{"command", "outcome"},
		),
		commandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time spent executing a command",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"command"},
		),
		csmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "csm_requests_total",
				Help:      "Requests sent to the asset service, by HTTP status",
			},
			[]string{"endpoint", "status"},
		),
		leader: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leader",
			Help:      "1 while this process owns the host connection",
		}),
	}
}

func (c *Collector) ObserveCommand(name, outcome string, elapsed time.Duration) {
	c.commandsTotal.WithLabelValues(name, outcome).Inc()
	if elapsed > 0 {
		c.commandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

func (c *Collector) ObserveCSMRequest(endpoint, status string) {
	c.csmRequests.WithLabelValues(endpoint, status).Inc()
}

func (c *Collector) SetLeader(isLeader bool) {
	if isLeader {
		c.leader.Set(1)
		return
	}
	c.leader.Set(0)
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
