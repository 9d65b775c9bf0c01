// Package metrics exposes Prometheus instrumentation for the viewer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the viewer client.
type Metrics struct {
	registry         *prometheus.Registry
	playbackRestarts prometheus.Counter
	probeAttempts    prometheus.Counter
	pollErrors       prometheus.Counter
	quizAnswers      prometheus.Counter
	pushEvents       *prometheus.CounterVec
	connected        prometheus.Gauge
	sessionActive    prometheus.Gauge
	playbackState    *prometheus.GaugeVec
}

// New creates and registers the viewer metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	playbackRestarts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_playback_restarts_total",
		Help: "Total number of playback recovery restarts",
	})
	probeAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_probe_attempts_total",
		Help: "Total number of stream availability probe attempts",
	})
	pollErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_poll_errors_total",
		Help: "Total number of failed session polls",
	})
	quizAnswers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_quiz_answers_total",
		Help: "Total number of quiz answers submitted",
	})
	pushEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "viewer_push_events_total",
		Help: "Total number of push events received, by event name",
	}, []string{"event"})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_push_connected",
		Help: "Whether the push channel is connected (1) or not (0)",
	})
	sessionActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_session_active",
		Help: "Whether a live session is tracked (1) or not (0)",
	})
	playbackState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "viewer_playback_state",
		Help: "Current playback engine state per surface (1 on the active state)",
	}, []string{"surface", "state"})

	registry.MustRegister(
		playbackRestarts,
		probeAttempts,
		pollErrors,
		quizAnswers,
		pushEvents,
		connected,
		sessionActive,
		playbackState,
	)

	return &Metrics{
		registry:         registry,
		playbackRestarts: playbackRestarts,
		probeAttempts:    probeAttempts,
		pollErrors:       pollErrors,
		quizAnswers:      quizAnswers,
		pushEvents:       pushEvents,
		connected:        connected,
		sessionActive:    sessionActive,
		playbackState:    playbackState,
	}
}

// IncPlaybackRestarts increments the playback restart counter.
func (m *Metrics) IncPlaybackRestarts() { m.playbackRestarts.Inc() }

// IncProbeAttempts increments the probe attempt counter.
func (m *Metrics) IncProbeAttempts() { m.probeAttempts.Inc() }

// IncPollErrors increments the failed-poll counter.
func (m *Metrics) IncPollErrors() { m.pollErrors.Inc() }

// IncQuizAnswers increments the submitted-answer counter.
func (m *Metrics) IncQuizAnswers() { m.quizAnswers.Inc() }

// IncPushEvents increments the push event counter for an event name.
func (m *Metrics) IncPushEvents(event string) { m.pushEvents.WithLabelValues(event).Inc() }

// SetConnected records push channel connectivity.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// SetSessionActive records whether a session is tracked.
func (m *Metrics) SetSessionActive(active bool) {
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}

// SetPlaybackState marks state as the active playback state for a surface,
// clearing the surface's previous state series.
func (m *Metrics) SetPlaybackState(surface, state string) {
	m.playbackState.DeletePartialMatch(prometheus.Labels{"surface": surface})
	m.playbackState.WithLabelValues(surface, state).Set(1)
}

// Handler returns an http.Handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
