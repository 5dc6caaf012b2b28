// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_jobs_queued",
		Help: "Number of analysis jobs waiting for admission.",
	})

	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_jobs_running",
		Help: "Number of analysis jobs currently running.",
	})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_jobs_finished_total",
		Help: "Analysis jobs that reached a terminal state, by state.",
	}, []string{"state"})

	PositionsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_positions_evaluated_total",
		Help: "Positions evaluated by the engine pool.",
	})

	PositionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_positions_failed_total",
		Help: "Position evaluations that failed after retry.",
	})

	EnginesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_engines_live",
		Help: "Engine processes currently alive in the pool.",
	})

	EngineSpawns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_engine_spawns_total",
		Help: "Engine processes spawned.",
	})

	EngineFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_engine_faults_total",
		Help: "Engine handles destroyed due to faults or timeouts.",
	})
)
