// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callguard"

var (
	SessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Call sessions currently registered.",
	})

	// Signals counts inbound and outbound signaling by kind and outcome (routed, dropped, sent, failed).
	Signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_total",
		Help:      "Signaling messages handled.",
	}, []string{"kind", "outcome"})

	Windows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "windows_total",
		Help:      "Audio windows by analysis outcome.",
	}, []string{"outcome"})

	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_total",
		Help:      "Alert side-channel writes.",
	}, []string{"outcome"})

	JobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_dropped_total",
		Help:      "Jobs rejected because a worker queue was full or closed.",
	}, []string{"pool"})

	FramesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_forwarded_total",
		Help:      "RTP packets forwarded between call legs.",
	})
)
