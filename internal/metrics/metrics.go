package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarsync_frames_total",
			Help: "Total number of parameter frames published",
		},
	)

	CaptureNotReady = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarsync_capture_not_ready_total",
			Help: "Ticks that substituted a zero spectrum because no audio was playing",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avatarsync_tick_duration_seconds",
			Help:    "Time spent capturing, extracting and smoothing one frame",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarsync_sessions_total",
			Help: "Playback sessions by final state",
		},
		[]string{"outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avatarsync_active_sessions",
			Help: "Number of sessions in the Priming or Active state",
		},
	)

	SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "avatarsync_synthesis_duration_seconds",
			Help: "Text generation and speech synthesis latency in seconds",
		},
		[]string{"stage"},
	)
)
