// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts raw frames crossing the TUN device by direction.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunstack_packets_total",
			Help: "Total number of raw frames read from or written to the TUN device",
		},
		[]string{"direction"},
	)

	// SegmentsTotal counts inbound TCP segments by processing result.
	SegmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunstack_tcp_segments_total",
			Help: "Total number of inbound TCP segments by result (ok, bad_checksum, unexpected)",
		},
		[]string{"result"},
	)

	// ConnectionsAccepted counts connections handed to the application.
	ConnectionsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tunstack_connections_accepted_total",
			Help: "Total number of connections delivered through accept",
		},
	)

	// ConnectionsOpen tracks live entries in the connection table.
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunstack_connections_open",
			Help: "Current number of entries in the connection table",
		},
	)
)
