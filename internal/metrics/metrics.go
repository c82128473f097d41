// Package metrics exposes the engine's process counters. They are served
// on the control API at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsAdmitted counts notifications that passed dedup, by stream.
	NotificationsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_notifications_admitted_total",
		Help: "Notifications admitted past replay suppression.",
	}, []string{"stream"})

	// DuplicatesRejected counts dedup rejections, by stream.
	DuplicatesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_duplicates_rejected_total",
		Help: "Notifications rejected as duplicates or replays.",
	}, []string{"stream"})

	// FramesDropped counts stream frames dropped as unparsable.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_frames_dropped_total",
		Help: "Stream frames dropped because their payload did not parse.",
	})

	// Reconnects counts reconnect attempts, by transport.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_reconnects_total",
		Help: "Reconnect attempts scheduled after transport failures.",
	}, []string{"transport"})

	// SoundsSuppressed counts sound triggers swallowed by the rate limit
	// or the locked gate.
	SoundsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_sounds_suppressed_total",
		Help: "Sound triggers suppressed by the gate or its rate limit.",
	})

	// SnacksPresented counts snackbar presentations, by lane.
	SnacksPresented = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_snacks_presented_total",
		Help: "Snackbar items handed to the presenter.",
	}, []string{"lane"})
)
