package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(stageTransitionsTotal, jobsFinishedTotal, jobDurationSeconds) }

var (
	stageTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_stage_transitions_total",
			Help: "Job stage transitions, labeled by the stage entered.",
		},
		[]string{"stage"},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_finished_total",
			Help: "Jobs reaching a terminal stage, labeled by stage and report provenance.",
		},
		[]string{"stage", "provenance"}, // provenance: llm | fallback | none
	)

	jobDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_job_duration_seconds",
			Help:    "Wall time from submission to terminal stage.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

func IncStageTransition(stage string) {
	stageTransitionsTotal.WithLabelValues(norm(stage)).Inc()
}

func ObserveJobFinished(stage, provenance string, elapsed time.Duration) {
	if provenance == "" {
		provenance = "none"
	}
	jobsFinishedTotal.WithLabelValues(norm(stage), norm(provenance)).Inc()
	jobDurationSeconds.Observe(elapsed.Seconds())
}
