package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(runsProcessedTotal, runnerCycleSeconds) }

var runsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prompt_runs_processed_total",
		Help: "Total number of prompt-job runs processed, labeled by outcome.",
	},
	[]string{"outcome"}, // success | fail | duplicate | quota_blocked | disabled
)

var runnerCycleSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "prompt_runner_cycle_seconds",
		Help:    "Wall-clock duration of one runDueJobs invocation.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	},
)

func IncRun(outcome string) {
	runsProcessedTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveRunnerCycle(seconds float64) {
	runnerCycleSeconds.Observe(seconds)
}
