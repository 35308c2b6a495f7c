// Package metrics registers the prometheus counters/gauges the broker and
// transaction manager update as a backtest runs, mirroring the teacher's
// metrics.go layout (package-level prometheus vars registered in init).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestcore_orders_filled_total",
			Help: "Total number of orders filled, by symbol and kind.",
		},
		[]string{"symbol", "kind"},
	)

	OrdersCanceled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestcore_orders_canceled_total",
			Help: "Total number of orders canceled, by symbol and kind.",
		},
		[]string{"symbol", "kind"},
	)

	UnitsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backtestcore_units_open",
			Help: "Current number of open position units, by symbol.",
		},
		[]string{"symbol"},
	)

	TransactionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backtestcore_transactions_open",
			Help: "Current number of open (not yet completed) transactions.",
		},
	)

	TransactionsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backtestcore_transactions_completed_total",
			Help: "Total number of transactions completed across the backtest.",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersFilled, OrdersCanceled, UnitsOpen, TransactionsOpen, TransactionsCompleted)
}
