// Package metrics exposes Prometheus instruments for the trading loop and the
// HTTP endpoint that serves them alongside a status snapshot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smabot_cycles_total", Help: "Poll cycles executed, by outcome"},
		[]string{"symbol", "result"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smabot_orders_total", Help: "Deals submitted, by side and return code"},
		[]string{"symbol", "side", "retcode"},
	)
	StopModificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smabot_stop_modifications_total", Help: "Stop-loss modification requests, by return code"},
		[]string{"symbol", "retcode"},
	)
	Exposure = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "smabot_exposure", Help: "Sum of open position volumes"},
		[]string{"symbol"},
	)
	LastClose = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "smabot_last_close", Help: "Close of the newest completed bar"},
		[]string{"symbol"},
	)
	SMA = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "smabot_sma", Help: "Simple moving average of closes"},
		[]string{"symbol"},
	)
	Direction = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "smabot_signal_direction", Help: "1 buy, -1 sell, 0 flat"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, OrdersTotal, StopModificationsTotal, Exposure, LastClose, SMA, Direction)
}

func DirectionValue(direction string) float64 {
	switch direction {
	case "buy":
		return 1
	case "sell":
		return -1
	default:
		return 0
	}
}
