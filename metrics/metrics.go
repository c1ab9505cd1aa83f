package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the payout engine. Amounts are
// exported in ether rather than wei so dashboards stay readable.
type Metrics struct {
	SharesAccrued    prometheus.Counter
	RewardedEther    prometheus.Counter
	PendingEther     prometheus.Gauge
	PayoutsCompleted prometheus.Counter
	PayoutsFailed    prometheus.Counter
}

// New registers the engine collectors on the default prometheus registry.
func New() *Metrics {
	m := &Metrics{
		SharesAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minepay_shares_accrued_total",
			Help: "Accepted shares credited to the pending balance.",
		}),
		RewardedEther: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minepay_rewarded_ether_total",
			Help: "Total reward value accrued, in ether.",
		}),
		PendingEther: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minepay_pending_ether",
			Help: "Current pending balance, in ether.",
		}),
		PayoutsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minepay_payouts_completed_total",
			Help: "Payout transactions accepted by the node.",
		}),
		PayoutsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minepay_payouts_failed_total",
			Help: "Payout submissions rejected by the node. The reserved balance is restored on failure.",
		}),
	}
	prometheus.MustRegister(
		m.SharesAccrued,
		m.RewardedEther,
		m.PendingEther,
		m.PayoutsCompleted,
		m.PayoutsFailed,
	)
	return m
}
