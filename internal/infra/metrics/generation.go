package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(generationRequestsTotal, generationLatency) }

var generationRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prompt_generation_requests_total",
		Help: "Generation service calls, labeled by stage and result.",
	},
	[]string{"stage", "result"}, // stage: primary | post; result: ok | error
)

var generationLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "prompt_generation_latency_seconds",
		Help:    "Latency of generation service calls by stage.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	},
	[]string{"stage"},
)

func ObserveGeneration(stage string, seconds float64, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	generationRequestsTotal.WithLabelValues(norm(stage), result).Inc()
	generationLatency.WithLabelValues(norm(stage)).Observe(seconds)
}
