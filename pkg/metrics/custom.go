package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "bountyhub"

var (
	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"scope", "key", "reason"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"provider", "method", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"provider", "method", "state"}, // state: closed/open/half_open
	)

	SettlementOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_operations_total",
			Help:      "Money-moving operations by kind and result.",
		},
		[]string{"op", "result"},
	)

	FraudBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_block_total",
			Help:      "Requests blocked or flagged by the risk guard.",
		},
		[]string{"check", "reason"},
	)

	WebhookRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_reject_total",
			Help:      "Provider webhooks rejected before any state change.",
		},
		[]string{"provider", "reason"},
	)
)

func MustRegister() {
	prometheus.MustRegister(RateLimitBlockTotal, CBRejectTotal, CBState,
		SettlementOpsTotal, FraudBlockTotal, WebhookRejectTotal)
}

// Op 记录一次结算操作的结果
func Op(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SettlementOpsTotal.WithLabelValues(op, result).Inc()
}
