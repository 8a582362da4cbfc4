package moisture

import (
	"net/http"

	"github.com/TheCacophonyProject/soil-moisture-node/attribute"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "soil_moisture"

// Metrics counts measurement cycles and mirrors published attributes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	cycles     *prometheus.CounterVec
	faults     *prometheus.CounterVec
	raw        *prometheus.GaugeVec
	published  *prometheus.CounterVec
	attributes *prometheus.GaugeVec
	joined     prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Measurement cycles by channel and outcome.",
		}, []string{"channel", "outcome"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "faults_total",
			Help:      "Failed readings by channel and kind.",
		}, []string{"channel", "kind"}),
		raw: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "raw_millivolts",
			Help:      "Last raw reading by channel.",
		}, []string{"channel"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attribute_reports_total",
			Help:      "Attribute reports published.",
		}, []string{"cluster", "attribute"}),
		attributes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "attribute_value",
			Help:      "Last published attribute value.",
		}, []string{"cluster", "attribute"}),
		joined: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "network_joined",
			Help:      "1 when the node is joined to the network.",
		}),
	}
	m.registry.MustRegister(m.cycles, m.faults, m.raw, m.published, m.attributes, m.joined)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) cycle(ch Channel, outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(ch.String(), outcome).Inc()
}

func (m *Metrics) fault(ch Channel, err error) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(ch.String(), faultKind(err)).Inc()
}

func (m *Metrics) reading(ch Channel, mv int) {
	if m == nil {
		return
	}
	m.raw.WithLabelValues(ch.String()).Set(float64(mv))
}

func (m *Metrics) setJoined(joined bool) {
	if m == nil {
		return
	}
	if joined {
		m.joined.Set(1)
	} else {
		m.joined.Set(0)
	}
}

// PublishAttribute lets Metrics sit in the publisher fanout.
func (m *Metrics) PublishAttribute(cluster attribute.Cluster, id attribute.ID, value int) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(cluster.String(), cluster.Name(id)).Inc()
	m.attributes.WithLabelValues(cluster.String(), cluster.Name(id)).Set(float64(value))
}
