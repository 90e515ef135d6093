package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	workloadStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlane",
			Subsystem: "workload",
			Name:      "starts_total",
			Help:      "Number of successful workload process spawns.",
		}, []string{"project", "action"},
	)
	workloadStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlane",
			Subsystem: "workload",
			Name:      "stops_total",
			Help:      "Number of workload stops (explicit or exit).",
		}, []string{"project", "action"},
	)
	buildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "devlane",
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of one-shot build invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"project"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlane",
			Subsystem: "project",
			Name:      "state_transitions_total",
			Help:      "Number of project state transitions.",
		}, []string{"project", "from", "to"},
	)
	trackedProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "devlane",
			Subsystem: "workload",
			Name:      "tracked_processes",
			Help:      "Current number of live entries in the process table.",
		},
	)
	connectedObservers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "devlane",
			Subsystem: "telemetry",
			Name:      "connected_observers",
			Help:      "Current number of connected telemetry observers.",
		},
	)
	droppedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlane",
			Subsystem: "telemetry",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped on overflowing observer queues.",
		}, []string{"observer"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{workloadStarts, workloadStops, buildDuration, stateTransitions, trackedProcesses, connectedObservers, droppedMessages}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until Register
// has been called.

func IncStart(project, action string) {
	if regOK.Load() {
		workloadStarts.WithLabelValues(project, action).Inc()
	}
}

func IncStop(project, action string) {
	if regOK.Load() {
		workloadStops.WithLabelValues(project, action).Inc()
	}
}

func ObserveBuildDuration(project string, seconds float64) {
	if regOK.Load() {
		buildDuration.WithLabelValues(project).Observe(seconds)
	}
}

func RecordStateTransition(project, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(project, from, to).Inc()
	}
}

func SetTrackedProcesses(n int) {
	if regOK.Load() {
		trackedProcesses.Set(float64(n))
	}
}

func SetConnectedObservers(n int) {
	if regOK.Load() {
		connectedObservers.Set(float64(n))
	}
}

func IncDroppedMessages(observer string) {
	if regOK.Load() {
		droppedMessages.WithLabelValues(observer).Inc()
	}
}
