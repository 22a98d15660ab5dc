package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks money market activity. A nil receiver is a no-op so
// engines built without metrics keep working.
type LendingMetrics struct {
	actions    *prometheus.CounterVec
	rejections *prometheus.CounterVec
	accrued    *prometheus.CounterVec
	rewardPaid *prometheus.CounterVec
	supply     *prometheus.GaugeVec
	borrows    *prometheus.GaugeVec
	reserves   *prometheus.GaugeVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "lending",
				Name:      "actions_total",
				Help:      "Count of successful market actions by action and market.",
			}, []string{"action", "market"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "lending",
				Name:      "rejections_total",
				Help:      "Count of rejected market actions by action and reason.",
			}, []string{"action", "reason"}),
			accrued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "lending",
				Name:      "interest_accrued_total",
				Help:      "Interest accrued to borrowers by market in underlying units.",
			}, []string{"market"}),
			rewardPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "lending",
				Name:      "rewards_paid_total",
				Help:      "Rewards transferred to holders by reward type.",
			}, []string{"reward"}),
			supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "moneymarket",
				Subsystem: "lending",
				Name:      "total_supply_shares",
				Help:      "Outstanding market shares by market.",
			}, []string{"market"}),
			borrows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "moneymarket",
				Subsystem: "lending",
				Name:      "total_borrows",
				Help:      "Outstanding borrows including accrued interest by market.",
			}, []string{"market"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "moneymarket",
				Subsystem: "lending",
				Name:      "total_reserves",
				Help:      "Protocol reserves by market.",
			}, []string{"market"}),
		}
		prometheus.MustRegister(
			lendingRegistry.actions,
			lendingRegistry.rejections,
			lendingRegistry.accrued,
			lendingRegistry.rewardPaid,
			lendingRegistry.supply,
			lendingRegistry.borrows,
			lendingRegistry.reserves,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) ObserveAction(action, market string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(label(action), label(market)).Inc()
}

func (m *LendingMetrics) ObserveRejection(action, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(label(action), label(reason)).Inc()
}

func (m *LendingMetrics) ObserveAccrual(market string, amount *uint256.Int) {
	if m == nil || amount == nil || amount.IsZero() {
		return
	}
	m.accrued.WithLabelValues(label(market)).Add(toFloat(amount))
}

func (m *LendingMetrics) ObserveRewardPaid(reward string, amount *uint256.Int) {
	if m == nil || amount == nil || amount.IsZero() {
		return
	}
	m.rewardPaid.WithLabelValues(label(reward)).Add(toFloat(amount))
}

// SetMarketTotals publishes the aggregate balances of a market after a write.
func (m *LendingMetrics) SetMarketTotals(market string, supply, borrows, reserves *uint256.Int) {
	if m == nil {
		return
	}
	market = label(market)
	m.supply.WithLabelValues(market).Set(toFloat(supply))
	m.borrows.WithLabelValues(market).Set(toFloat(borrows))
	m.reserves.WithLabelValues(market).Set(toFloat(reserves))
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
