package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"smatrader/internal/broker"
	"smatrader/internal/state"
)

const (
	ActionHold         = "hold"
	ActionOpen         = "open"
	ActionFlip         = "flip"
	ActionCloseFailed  = "close_failed"
	ActionOpenFailed   = "open_failed"
	ActionOpenRejected = "open_rejected"
)

// Exposure groups the open positions on one symbol by side, in the order the
// broker reported them.
type Exposure struct {
	Symbol string
	Long   []broker.Position
	Short  []broker.Position
}

func NewExposure(symbol string, positions []broker.Position) Exposure {
	exp := Exposure{Symbol: symbol}
	for _, pos := range positions {
		if pos.Symbol != symbol {
			continue
		}
		if pos.Type == broker.Short {
			exp.Short = append(exp.Short, pos)
		} else {
			exp.Long = append(exp.Long, pos)
		}
	}
	return exp
}

func (e Exposure) State() state.ExposureState {
	switch {
	case len(e.Long) > 0 && len(e.Short) > 0:
		return state.ExposureMixed
	case len(e.Long) > 0:
		return state.ExposureLong
	case len(e.Short) > 0:
		return state.ExposureShort
	default:
		return state.ExposureFlat
	}
}

// Volume is the sum of all open volumes regardless of side.
func (e Exposure) Volume() float64 {
	total := 0.0
	for _, pos := range e.Long {
		total += pos.Volume
	}
	for _, pos := range e.Short {
		total += pos.Volume
	}
	return total
}

func (e Exposure) Tickets() []string {
	tickets := make([]string, 0, len(e.Long)+len(e.Short))
	for _, pos := range e.Long {
		tickets = append(tickets, pos.Ticket)
	}
	for _, pos := range e.Short {
		tickets = append(tickets, pos.Ticket)
	}
	return tickets
}

func (e Exposure) Same(side broker.Side) []broker.Position {
	if side == broker.Sell {
		return e.Short
	}
	return e.Long
}

func (e Exposure) Opposite(side broker.Side) []broker.Position {
	return e.Same(side.Opposite())
}

type ReconcileOutcome struct {
	Action string
	Opened []string
	Closed []string
	Errors []string
}

// ReconcileDirection reads the positions on symbol and moves them to a single
// position on the desired side.
func (m *OrderManager) ReconcileDirection(ctx context.Context, symbol string, desired broker.Side) (ReconcileOutcome, error) {
	positions, err := m.gw.Positions(ctx, symbol)
	if err != nil {
		return ReconcileOutcome{}, fmt.Errorf("reconcile %s: %w", symbol, err)
	}
	return m.Reconcile(ctx, NewExposure(symbol, positions), desired), nil
}

// Reconcile acts on an exposure read earlier in the cycle. Opposite positions
// are closed first; if any of them stays open nothing new is opened. Extra
// same-side positions are closed so one remains.
func (m *OrderManager) Reconcile(ctx context.Context, exp Exposure, desired broker.Side) ReconcileOutcome {
	var out ReconcileOutcome
	log := m.log.WithFields(logrus.Fields{
		"symbol":   exp.Symbol,
		"desired":  desired,
		"exposure": exp.State(),
	})

	closeFailed := false
	for _, pos := range exp.Opposite(desired) {
		if m.closeTracked(ctx, pos, &out) {
			continue
		}
		closeFailed = true
	}
	if closeFailed {
		out.Action = ActionCloseFailed
		log.WithField("errors", out.Errors).Warn("opposite position still open, not opening")
		return out
	}

	same := exp.Same(desired)
	if len(same) > 0 {
		for _, extra := range same[1:] {
			m.closeTracked(ctx, extra, &out)
		}
		out.Action = ActionHold
		log.WithField("ticket", same[0].Ticket).Debug("already positioned")
		return out
	}

	res, err := m.OpenMarketOrder(ctx, exp.Symbol, m.params.Volume, desired)
	switch {
	case err != nil:
		out.Action = ActionOpenFailed
		out.Errors = append(out.Errors, err.Error())
	case !res.OK():
		out.Action = ActionOpenRejected
		out.Errors = append(out.Errors, res.String())
	default:
		out.Opened = append(out.Opened, res.OrderID)
		out.Action = ActionOpen
		if len(out.Closed) > 0 {
			out.Action = ActionFlip
		}
	}
	log.WithFields(logrus.Fields{"action": out.Action, "opened": out.Opened, "closed": out.Closed}).Info("reconciled")
	return out
}

func (m *OrderManager) closeTracked(ctx context.Context, pos broker.Position, out *ReconcileOutcome) bool {
	res, err := m.closeOpen(ctx, pos)
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
		return false
	}
	if !res.OK() {
		out.Errors = append(out.Errors, fmt.Sprintf("close %s: %s", pos.Ticket, res))
		return false
	}
	out.Closed = append(out.Closed, pos.Ticket)
	return true
}
