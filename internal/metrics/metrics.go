// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umlstudio_generations_total",
		Help: "Content generation calls by mode and outcome",
	}, []string{"mode", "outcome"})

	renders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umlstudio_renders_total",
		Help: "Render attempts by dialect and outcome (rendered, degraded)",
	}, []string{"dialect", "outcome"})

	externalLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "umlstudio_external_call_seconds",
		Help:    "Latency of generator and renderer calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"capability"})

	versionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "umlstudio_version_conflicts_total",
		Help: "Version number collisions hit while appending a diagram version",
	})

	artifactReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umlstudio_artifact_releases_total",
		Help: "Rendered image release attempts by outcome",
	}, []string{"outcome"})

	staleProjects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "umlstudio_stale_projects_failed_total",
		Help: "PENDING projects moved to ERROR by the sweeper",
	})
)

func ObserveGeneration(mode string, err error, took time.Duration) {
	generations.WithLabelValues(mode, outcome(err)).Inc()
	externalLatency.WithLabelValues("generator").Observe(took.Seconds())
}

func ObserveRender(dialect string, rendered bool, took time.Duration) {
	o := "degraded"
	if rendered {
		o = "rendered"
	}
	renders.WithLabelValues(dialect, o).Inc()
	externalLatency.WithLabelValues("renderer").Observe(took.Seconds())
}

func IncVersionConflict() {
	versionConflicts.Inc()
}

func ObserveRelease(err error) {
	artifactReleases.WithLabelValues(outcome(err)).Inc()
}

func AddStaleProjects(n int64) {
	staleProjects.Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
