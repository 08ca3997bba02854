package risk

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"smatrader/internal/broker"
)

var (
	ErrKillSwitch        = errors.New("kill_switch_enabled")
	ErrInvalidVolume     = errors.New("invalid_volume")
	ErrMaxVolumeExceeded = errors.New("max_volume_exceeded")
	ErrInvalidTick       = errors.New("invalid_tick")
	ErrMaxSpreadExceeded = errors.New("max_spread_exceeded")
)

// Order is a market order about to be sent.
type Order struct {
	Symbol string
	Side   broker.Side
	Volume float64
	Tick   broker.Tick
}

// Gate vets new market orders. Zero limits are disabled. Closing deals and
// stop modifications never pass through it.
type Gate struct {
	KillSwitch bool
	MaxVolume  float64
	MaxSpread  float64
}

func (g Gate) Evaluate(order Order) error {
	log := logrus.WithFields(logrus.Fields{
		"component": "risk",
		"symbol":    order.Symbol,
		"side":      order.Side,
		"volume":    order.Volume,
	})

	if g.KillSwitch {
		log.WithField("reason", ErrKillSwitch).Info("risk rejected")
		return ErrKillSwitch
	}
	if order.Volume <= 0 {
		log.WithField("reason", ErrInvalidVolume).Info("risk rejected")
		return ErrInvalidVolume
	}
	if g.MaxVolume > 0 && order.Volume > g.MaxVolume {
		log.WithFields(logrus.Fields{"reason": ErrMaxVolumeExceeded, "max": g.MaxVolume}).Info("risk rejected")
		return fmt.Errorf("%w: %g > %g", ErrMaxVolumeExceeded, order.Volume, g.MaxVolume)
	}
	if order.Tick.Bid <= 0 || order.Tick.Ask <= 0 || order.Tick.Ask < order.Tick.Bid {
		log.WithFields(logrus.Fields{"reason": ErrInvalidTick, "bid": order.Tick.Bid, "ask": order.Tick.Ask}).Info("risk rejected")
		return fmt.Errorf("%w: bid=%g ask=%g", ErrInvalidTick, order.Tick.Bid, order.Tick.Ask)
	}
	if g.MaxSpread > 0 && order.Tick.Spread() > g.MaxSpread {
		log.WithFields(logrus.Fields{"reason": ErrMaxSpreadExceeded, "spread": order.Tick.Spread(), "max": g.MaxSpread}).Info("risk rejected")
		return fmt.Errorf("%w: %g > %g", ErrMaxSpreadExceeded, order.Tick.Spread(), g.MaxSpread)
	}

	log.Debug("risk approved")
	return nil
}
