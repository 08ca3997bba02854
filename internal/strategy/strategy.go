package strategy

import (
	"time"

	"smatrader/internal/broker"
)

type Direction string

const (
	Flat Direction = "flat"
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Side maps a direction onto an order side. Flat has none.
func (d Direction) Side() (broker.Side, bool) {
	switch d {
	case Buy:
		return broker.Buy, true
	case Sell:
		return broker.Sell, true
	default:
		return "", false
	}
}

// Signal is recomputed on every poll and never carried across cycles.
type Signal struct {
	LastClose float64
	SMA       float64
	Direction Direction
	BarTime   time.Time
}

type Strategy interface {
	// Lookback is the number of completed bars Evaluate needs.
	Lookback() int
	Evaluate(bars []broker.Bar) (Signal, error)
}
