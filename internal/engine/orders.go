package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"smatrader/internal/broker"
	"smatrader/internal/metrics"
	"smatrader/internal/risk"
)

var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrPositionVanished = errors.New("position vanished")
)

// OrderParams are the fixed per-order settings. Volume is never resized.
type OrderParams struct {
	Volume      float64
	Deviation   int
	Magic       int
	Comment     string
	MaxDistSL   float64
	TrailAmount float64
	DefaultSL   float64
}

type OrderManager struct {
	gw     broker.Gateway
	gate   risk.Gate
	params OrderParams
	runID  string
	seq    uint64
	log    *logrus.Entry
}

func NewOrderManager(gw broker.Gateway, gate risk.Gate, params OrderParams, runID string, log *logrus.Entry) *OrderManager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &OrderManager{
		gw:     gw,
		gate:   gate,
		params: params,
		runID:  runID,
		log:    log.WithField("component", "orders"),
	}
}

// OpenMarketOrder sends a new deal at the touch: ask for buys, bid for sells.
// Risk rejections come back as errors and nothing is sent.
func (m *OrderManager) OpenMarketOrder(ctx context.Context, symbol string, volume float64, side broker.Side) (broker.OrderResult, error) {
	tick, err := m.gw.Tick(ctx, symbol)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("open %s %s: %w", side, symbol, err)
	}
	if err := m.gate.Evaluate(risk.Order{Symbol: symbol, Side: side, Volume: volume, Tick: tick}); err != nil {
		return broker.OrderResult{}, fmt.Errorf("open %s %s: %w", side, symbol, err)
	}
	return m.submit(ctx, broker.OrderRequest{
		Symbol: symbol,
		Volume: volume,
		Side:   side,
		Price:  touch(side, tick),
	})
}

// ClosePosition closes the full volume of an open ticket with an opposing deal.
func (m *OrderManager) ClosePosition(ctx context.Context, ticket string) (broker.OrderResult, error) {
	positions, err := m.gw.Positions(ctx, "")
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("close %s: %w", ticket, err)
	}
	for _, pos := range positions {
		if pos.Ticket == ticket {
			return m.closeOpen(ctx, pos)
		}
	}
	m.log.WithField("ticket", ticket).Warn("position does not exist")
	return broker.OrderResult{}, fmt.Errorf("close %s: %w", ticket, ErrTicketNotFound)
}

func (m *OrderManager) closeOpen(ctx context.Context, pos broker.Position) (broker.OrderResult, error) {
	tick, err := m.gw.Tick(ctx, pos.Symbol)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("close %s: %w", pos.Ticket, err)
	}
	side := pos.Type.CloseSide()
	return m.submit(ctx, broker.OrderRequest{
		Symbol:   pos.Symbol,
		Volume:   pos.Volume,
		Side:     side,
		Price:    touch(side, tick),
		Position: pos.Ticket,
	})
}

func (m *OrderManager) submit(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	req.Action = broker.ActionDeal
	req.Deviation = m.params.Deviation
	req.TimeInForce = broker.GTC
	req.FillPolicy = broker.FillOrKill
	req.Magic = m.params.Magic
	req.Comment = m.params.Comment
	req.ClientOrderID = m.nextClientOrderID()

	fields := logrus.Fields{
		"symbol":          req.Symbol,
		"side":            req.Side,
		"volume":          req.Volume,
		"price":           req.Price,
		"ticket":          req.Position,
		"client_order_id": req.ClientOrderID,
	}
	res, err := m.gw.SubmitOrder(ctx, req)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(req.Symbol, string(req.Side), "error").Inc()
		m.log.WithFields(fields).WithError(err).Error("order failed")
		return res, fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, err)
	}
	metrics.OrdersTotal.WithLabelValues(req.Symbol, string(req.Side), res.Retcode.String()).Inc()
	m.log.WithFields(fields).WithField("result", res.String()).Info("order sent")
	return res, nil
}

func (m *OrderManager) nextClientOrderID() string {
	seq := atomic.AddUint64(&m.seq, 1)
	return fmt.Sprintf("%s-%d", m.runID, seq)
}

// TrailResult describes one trailing decision. Result is only populated when
// a modification was sent.
type TrailResult struct {
	Ticket      string
	Modified    bool
	Distance    float64
	NewStopLoss float64
	Result      broker.OrderResult
}

// TrailStopLoss pulls the stop of ticket towards the current price once the
// gap exceeds MaxDistSL. A position without a stop gets one DefaultSL away.
func (m *OrderManager) TrailStopLoss(ctx context.Context, ticket string) (TrailResult, error) {
	out := TrailResult{Ticket: ticket}
	pos, ok, err := m.gw.PositionByTicket(ctx, ticket)
	if err != nil {
		return out, fmt.Errorf("trail %s: %w", ticket, err)
	}
	if !ok {
		return out, fmt.Errorf("trail %s: %w", ticket, ErrPositionVanished)
	}

	sl, dist, move := nextStopLoss(pos, m.params)
	out.Distance = dist
	if !move {
		return out, nil
	}
	out.NewStopLoss = sl

	res, err := m.gw.ModifyStopLoss(ctx, ticket, sl)
	if err != nil {
		metrics.StopModificationsTotal.WithLabelValues(pos.Symbol, "error").Inc()
		return out, fmt.Errorf("trail %s: %w", ticket, err)
	}
	metrics.StopModificationsTotal.WithLabelValues(pos.Symbol, res.Retcode.String()).Inc()
	out.Modified = true
	out.Result = res
	m.log.WithFields(logrus.Fields{
		"ticket":    ticket,
		"symbol":    pos.Symbol,
		"distance":  dist,
		"stop_loss": sl,
		"result":    res.String(),
	}).Info("stop loss trailed")
	return out, nil
}

// nextStopLoss returns the new stop, the current distance from the old one
// and whether a modification is due. A set stop never moves against the
// position.
func nextStopLoss(pos broker.Position, params OrderParams) (float64, float64, bool) {
	current := decimal.NewFromFloat(pos.PriceCurrent)
	stop := decimal.NewFromFloat(pos.StopLoss)
	dist := current.Sub(stop).Round(6).Abs()
	if !dist.GreaterThan(decimal.NewFromFloat(params.MaxDistSL)) {
		return 0, dist.InexactFloat64(), false
	}

	step := decimal.NewFromFloat(params.TrailAmount)
	if pos.StopLoss == 0 {
		step = decimal.NewFromFloat(params.DefaultSL)
	}
	next := current.Sub(step)
	if pos.Type == broker.Short {
		next = current.Add(step)
	}

	if pos.StopLoss != 0 {
		if pos.Type == broker.Long && !next.GreaterThan(stop) {
			return 0, dist.InexactFloat64(), false
		}
		if pos.Type == broker.Short && !next.LessThan(stop) {
			return 0, dist.InexactFloat64(), false
		}
	}
	return next.Round(6).InexactFloat64(), dist.InexactFloat64(), true
}

func touch(side broker.Side, tick broker.Tick) float64 {
	if side == broker.Sell {
		return tick.Bid
	}
	return tick.Ask
}
