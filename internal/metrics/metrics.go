// Package metrics registers the service's prometheus instruments,
// exposed at /metrics by the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansPublished counts token frames accepted into the mailbox.
	ScansPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealcard_scans_published_total",
		Help: "Token frames accepted from the hardware reader.",
	})

	// ScansConsumed counts tokens taken from the mailbox by the UI poll.
	ScansConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealcard_scans_consumed_total",
		Help: "Tokens consumed from the mailbox by terminals.",
	})

	// MalformedFrames counts reader lines without a token prefix.
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealcard_malformed_frames_total",
		Help: "Reader frames discarded as malformed.",
	})

	// Verifications counts outcomes by reason code.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealcard_verifications_total",
		Help: "Verification outcomes by reason.",
	}, []string{"reason"})

	// ReaderConnected is 1 while the hardware stream is up.
	ReaderConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mealcard_reader_connected",
		Help: "Whether the hardware reader stream is connected.",
	})
)
