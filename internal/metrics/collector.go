// Package metrics republishes telemetry events as Prometheus metrics.
package metrics

import (
	"strconv"

	"clusterlink/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ telemetry.Sink = (*Collector)(nil)

// Collector is a telemetry.Sink. Register it on the event bus.
type Collector struct {
	connects        *prometheus.CounterVec
	disconnects     *prometheus.CounterVec
	polls           *prometheus.CounterVec
	pollDuration    *prometheus.HistogramVec
	discovered      *prometheus.GaugeVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector registers the metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		connects: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "connects_total",
			Namespace: namespace,
			Subsystem: subsystemReconcile,
			Help:      "connect attempts by topology, result and failure reason",
		}, []string{LabelTopology, LabelResult, LabelReason}),
		disconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "disconnects_total",
			Namespace: namespace,
			Subsystem: subsystemReconcile,
			Help:      "disconnect attempts by topology, result and reason",
		}, []string{LabelTopology, LabelResult, LabelReason}),
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "total",
			Namespace: namespace,
			Subsystem: subsystemPoll,
			Help:      "discovery polls by topology, strategy and result",
		}, []string{LabelTopology, LabelStrategy, LabelResult}),
		pollDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:      "duration_seconds",
			Namespace: namespace,
			Subsystem: subsystemPoll,
			Help:      "time spent discovering peers",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelTopology, LabelStrategy}),
		discovered: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:      "nodes_discovered",
			Namespace: namespace,
			Subsystem: subsystemPoll,
			Help:      "peers returned by the last successful poll",
		}, []string{LabelTopology, LabelStrategy}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "total",
			Namespace: namespace,
			Subsystem: subsystemRequest,
			Help:      "discovery HTTP requests by topology and status",
		}, []string{LabelTopology, LabelStatus}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:      "duration_seconds",
			Namespace: namespace,
			Subsystem: subsystemRequest,
			Help:      "latency of discovery HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelTopology}),
	}
}

func (c *Collector) Handle(ev telemetry.Event) {
	md := ev.Metadata
	topology := md.String(telemetry.KeyTopology)
	strategy := md.String(telemetry.KeyStrategy)

	switch ev.Name {
	case telemetry.EventConnectOK:
		c.connects.WithLabelValues(topology, ResultOK, "").Inc()
	case telemetry.EventConnectError:
		c.connects.WithLabelValues(topology, ResultError, reasonLabel(md)).Inc()
	case telemetry.EventDisconnectOK:
		c.disconnects.WithLabelValues(topology, ResultOK, "").Inc()
	case telemetry.EventDisconnectError:
		c.disconnects.WithLabelValues(topology, ResultError, reasonLabel(md)).Inc()

	case telemetry.PrefixPoll + telemetry.SuffixStop:
		c.polls.WithLabelValues(topology, strategy, ResultOK).Inc()
		c.pollDuration.WithLabelValues(topology, strategy).Observe(ev.Measurements.Duration.Seconds())
		c.discovered.WithLabelValues(topology, strategy).Set(float64(md.Int(telemetry.KeyNodesDiscovered)))
	case telemetry.PrefixPoll + telemetry.SuffixException:
		c.polls.WithLabelValues(topology, strategy, ResultError).Inc()
		c.pollDuration.WithLabelValues(topology, strategy).Observe(ev.Measurements.Duration.Seconds())

	case telemetry.PrefixRequest + telemetry.SuffixStop:
		c.requests.WithLabelValues(topology, strconv.Itoa(md.Int(telemetry.KeyStatus))).Inc()
		c.requestDuration.WithLabelValues(topology).Observe(ev.Measurements.Duration.Seconds())
	case telemetry.PrefixRequest + telemetry.SuffixException:
		c.requests.WithLabelValues(topology, ResultError).Inc()
		c.requestDuration.WithLabelValues(topology).Observe(ev.Measurements.Duration.Seconds())
	}
}

// reasonLabel keeps label cardinality bounded: free-form error text from
// ReasonOther collapses to "other".
func reasonLabel(md telemetry.Metadata) string {
	switch r := md.String(telemetry.KeyReason); r {
	case "unreachable", "not_part_of_network", "already_disconnected":
		return r
	default:
		return "other"
	}
}
