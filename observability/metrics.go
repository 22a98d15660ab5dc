package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// mantissaOne is 1e18, the fixed-point unit used by protocol ratios.
var mantissaOne = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// MarketMetrics holds per-market gauges refreshed on every interest accrual.
type MarketMetrics struct {
	utilization  *prometheus.GaugeVec
	borrowIndex  *prometheus.GaugeVec
	exchangeRate *prometheus.GaugeVec
	accruals     *prometheus.CounterVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// Markets returns the process wide market registry.
func Markets() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "moneymarket",
				Subsystem: "market",
				Name:      "utilization_ratio",
				Help:      "Borrows over cash plus borrows minus reserves, at the last accrual.",
			}, []string{"market"}),
			borrowIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "moneymarket",
				Subsystem: "market",
				Name:      "borrow_index",
				Help:      "Cumulative borrow index, 1.0 at listing.",
			}, []string{"market"}),
			exchangeRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "moneymarket",
				Subsystem: "market",
				Name:      "exchange_rate",
				Help:      "Underlying per market share.",
			}, []string{"market"}),
			accruals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "market",
				Name:      "accruals_total",
				Help:      "Interest accruals that advanced the market clock.",
			}, []string{"market"}),
		}
		prometheus.MustRegister(
			marketRegistry.utilization,
			marketRegistry.borrowIndex,
			marketRegistry.exchangeRate,
			marketRegistry.accruals,
		)
	})
	return marketRegistry
}

// ObserveAccrual counts an accrual and publishes the resulting utilization and
// borrow index. Both are 1e18 mantissas.
func (m *MarketMetrics) ObserveAccrual(market string, utilization, borrowIndex *uint256.Int) {
	if m == nil {
		return
	}
	market = marketLabel(market)
	m.accruals.WithLabelValues(market).Inc()
	m.utilization.WithLabelValues(market).Set(mantissaFloat(utilization))
	m.borrowIndex.WithLabelValues(market).Set(mantissaFloat(borrowIndex))
}

// SetExchangeRate publishes the share exchange rate mantissa of a market.
func (m *MarketMetrics) SetExchangeRate(market string, rate *uint256.Int) {
	if m == nil {
		return
	}
	m.exchangeRate.WithLabelValues(marketLabel(market)).Set(mantissaFloat(rate))
}

// APIMetrics records read API traffic.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	lookups   *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *APIMetrics
)

// API returns the lazily registered read API collectors.
func API() *APIMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &APIMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Read API requests by route and outcome.",
			}, []string{"route", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Read API errors by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "moneymarket",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for read API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Read API requests rejected by the limiter.",
			}, []string{"reason"}),
			lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "moneymarket",
				Subsystem: "api",
				Name:      "market_lookups_total",
				Help:      "Market scoped reads by market.",
			}, []string{"market"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.failures,
			apiRegistry.latency,
			apiRegistry.throttles,
			apiRegistry.lookups,
		)
	})
	return apiRegistry
}

// Observe records one request against its route pattern. status is the code
// written to the client.
func (m *APIMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.failures.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *APIMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func (m *APIMetrics) RecordMarketLookup(market string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(marketLabel(market)).Inc()
}

func marketLabel(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return "UNKNOWN"
	}
	return v
}

func mantissaFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v.ToBig()), mantissaOne).Float64()
	return f
}
