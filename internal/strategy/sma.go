package strategy

import (
	"fmt"

	"smatrader/internal/broker"
)

// InsufficientDataError reports a bar window shorter than the SMA period.
type InsufficientDataError struct {
	Want int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: want %d bars, got %d", e.Want, e.Got)
}

// SMA signals buy while the last close is above the mean close of the window
// and sell while it is below.
type SMA struct {
	Period int
}

func (s SMA) Lookback() int {
	return s.Period
}

func (s SMA) Evaluate(bars []broker.Bar) (Signal, error) {
	return ComputeSignal(bars, s.Period)
}

// ComputeSignal uses the newest lookback bars of an oldest-to-newest series.
func ComputeSignal(bars []broker.Bar, lookback int) (Signal, error) {
	if lookback <= 0 {
		return Signal{}, fmt.Errorf("lookback must be positive, got %d", lookback)
	}
	if len(bars) < lookback {
		return Signal{}, &InsufficientDataError{Want: lookback, Got: len(bars)}
	}
	window := bars[len(bars)-lookback:]

	sum := 0.0
	for _, b := range window {
		sum += b.Close
	}
	last := window[len(window)-1]
	sig := Signal{
		LastClose: last.Close,
		SMA:       sum / float64(lookback),
		Direction: Flat,
		BarTime:   last.Time,
	}
	if sig.LastClose > sig.SMA {
		sig.Direction = Buy
	} else if sig.LastClose < sig.SMA {
		sig.Direction = Sell
	}
	return sig, nil
}
