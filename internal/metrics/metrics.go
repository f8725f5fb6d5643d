// Package metrics exposes the Prometheus instrumentation shared by the
// relay pipeline and the receiver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsRelayed counts packets framed onto the wire, by direction.
	PacketsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcap_bridge",
		Name:      "packets_relayed_total",
		Help:      "Captured packets framed and handed to the transport.",
	}, []string{"direction"})

	// BytesRelayed counts relayed payload bytes, by direction.
	BytesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcap_bridge",
		Name:      "bytes_relayed_total",
		Help:      "Captured payload bytes framed and handed to the transport.",
	}, []string{"direction"})

	// DatagramsSent counts datagrams written to the transport socket.
	DatagramsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pcap_bridge",
		Name:      "datagrams_sent_total",
		Help:      "Datagrams successfully written to the transport socket.",
	})

	// SendErrors counts transport write failures. Each failure also tears
	// the binding down.
	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pcap_bridge",
		Name:      "send_errors_total",
		Help:      "Transport write failures.",
	})

	// QueueDrops counts packets rejected because the capture queue was full.
	QueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pcap_bridge",
		Name:      "queue_drops_total",
		Help:      "Packets dropped because the capture queue was full.",
	})

	// OversizedDrops counts packets too large for a single datagram.
	OversizedDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pcap_bridge",
		Name:      "oversized_drops_total",
		Help:      "Packets dropped because one record would exceed the datagram size.",
	})

	// ReceiverDatagrams counts datagrams accepted by the receiver.
	ReceiverDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pcap_bridge",
		Name:      "receiver_datagrams_total",
		Help:      "Datagrams received and decoded by the receiver.",
	})

	// ReceiverDecodeErrors counts datagrams with truncated or corrupt tails.
	ReceiverDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pcap_bridge",
		Name:      "receiver_decode_errors_total",
		Help:      "Datagrams whose tail could not be decoded.",
	})
)
