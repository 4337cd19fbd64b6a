package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(deliveryAttemptsTotal, quotaBlockedTotal) }

var deliveryAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prompt_delivery_attempts_total",
		Help: "Physical delivery attempts, labeled by transport and status.",
	},
	[]string{"transport", "status"}, // status: success | fail
)

var quotaBlockedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "prompt_runs_quota_blocked_total",
		Help: "Runs blocked by the owner's daily run budget.",
	},
)

func IncDeliveryAttempt(transport, status string) {
	deliveryAttemptsTotal.WithLabelValues(norm(transport), norm(status)).Inc()
}

func IncQuotaBlocked() {
	quotaBlockedTotal.Inc()
}
