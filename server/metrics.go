package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "lowlevel"

// Metrics are updated by the serving goroutine only. A nil Registerer keeps
// them unregistered, which is what tests that build several servers want.
type Metrics struct {
	PeersConnected prometheus.Gauge
	PeersAccepted  prometheus.Counter
	PeersClosed    prometheus.Counter
	Messages       prometheus.Counter
	BytesReceived  prometheus.Counter
	BytesSent      prometheus.Counter
	ShortSends     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer, protocol string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"protocol": protocol}

	return &Metrics{
		PeersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "peers_connected",
			Help:        "Number of stream peers currently in the endpoint set.",
			ConstLabels: labels,
		}),
		PeersAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "peers_accepted_total",
			Help:        "Stream connections accepted.",
			ConstLabels: labels,
		}),
		PeersClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "peers_closed_total",
			Help:        "Stream peers removed after end of stream or a read error.",
			ConstLabels: labels,
		}),
		Messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "messages_total",
			Help:        "Chunks or datagrams received.",
			ConstLabels: labels,
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "bytes_received_total",
			Help:        "Bytes received from clients.",
			ConstLabels: labels,
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "bytes_sent_total",
			Help:        "Bytes accepted by the kernel for sending.",
			ConstLabels: labels,
		}),
		ShortSends: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "short_sends_total",
			Help:        "Sends that failed or were only partially accepted. They are not retried.",
			ConstLabels: labels,
		}),
	}
}
