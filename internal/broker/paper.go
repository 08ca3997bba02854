package broker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PaperTerminal is an in-memory hedging terminal. Every opening deal creates
// a new ticket, closing deals reference a ticket, and each position carries
// its own stop-loss. Quotes come from an optional feed or from SetTick/SetBars.
type PaperTerminal struct {
	mu        sync.Mutex
	feed      MarketDataGateway
	point     float64
	ticks     map[string]Tick
	bars      map[string][]Bar
	positions map[string]*Position
	order     []string
	seq       uint64
	log       *logrus.Entry
}

func NewPaperTerminal(feed MarketDataGateway, point float64, log *logrus.Entry) *PaperTerminal {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PaperTerminal{
		feed:      feed,
		point:     point,
		ticks:     map[string]Tick{},
		bars:      map[string][]Bar{},
		positions: map[string]*Position{},
		log:       log.WithField("component", "paper"),
	}
}

// SetTick stores a quote and marks open positions on its symbol, triggering
// any stop-loss the quote crosses.
func (p *PaperTerminal) SetTick(tick Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyTick(tick)
}

func (p *PaperTerminal) SetBars(symbol string, bars []Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol] = append([]Bar(nil), bars...)
}

// Open inserts a position directly, bypassing order validation. An explicit
// ticket that is already open replaces that position in place; numeric
// tickets are reserved so later deals never reuse them.
func (p *PaperTerminal) Open(pos Position) Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos.Ticket == "" {
		pos.Ticket = p.nextTicket()
	} else if n, err := strconv.ParseUint(pos.Ticket, 10, 64); err == nil && n > p.seq {
		p.seq = n
	}
	if pos.PriceCurrent == 0 {
		pos.PriceCurrent = pos.PriceOpen
	}
	stored := pos
	if _, exists := p.positions[pos.Ticket]; !exists {
		p.order = append(p.order, pos.Ticket)
	}
	p.positions[pos.Ticket] = &stored
	return pos
}

func (p *PaperTerminal) Tick(ctx context.Context, symbol string) (Tick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quote(ctx, symbol)
}

func (p *PaperTerminal) Bars(ctx context.Context, symbol string, timeframe time.Duration, offset, count int) ([]Bar, error) {
	if p.feed != nil {
		return p.feed.Bars(ctx, symbol, timeframe, offset, count)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	bars, ok := p.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("bars %s: %w", symbol, ErrUnknownSymbol)
	}
	return window(bars, offset, count), nil
}

func (p *PaperTerminal) Positions(ctx context.Context, symbol string) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh(ctx)
	out := make([]Position, 0, len(p.order))
	for _, ticket := range p.order {
		pos, ok := p.positions[ticket]
		if !ok || (symbol != "" && pos.Symbol != symbol) {
			continue
		}
		out = append(out, *pos)
	}
	return out, nil
}

func (p *PaperTerminal) PositionCount(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh(ctx)
	return len(p.positions), nil
}

func (p *PaperTerminal) PositionByTicket(ctx context.Context, ticket string) (Position, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh(ctx)
	pos, ok := p.positions[ticket]
	if !ok {
		return Position{}, false, nil
	}
	return *pos, true, nil
}

func (p *PaperTerminal) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Action == ActionSLTP {
		return p.ModifyStopLoss(ctx, req.Position, req.StopLoss)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Volume <= 0 || math.IsNaN(req.Volume) {
		return p.reject(req, RetcodeInvalidVolume, "invalid volume"), nil
	}

	var target *Position
	symbol := req.Symbol
	if req.Position != "" {
		pos, ok := p.positions[req.Position]
		if !ok {
			return p.reject(req, RetcodePositionClosed, "position already closed"), nil
		}
		if req.Side != pos.Type.CloseSide() {
			return p.reject(req, RetcodeInvalid, "close side does not oppose position"), nil
		}
		if req.Volume > pos.Volume {
			return p.reject(req, RetcodeInvalidVolume, "close volume exceeds position"), nil
		}
		target = pos
		symbol = pos.Symbol
	}

	tick, err := p.quote(ctx, symbol)
	if err != nil {
		return p.reject(req, RetcodeMarketClosed, err.Error()), nil
	}
	fill := tick.Ask
	if req.Side == Sell {
		fill = tick.Bid
	}
	if req.Price > 0 && p.point > 0 {
		slippage := math.Round(math.Abs(fill-req.Price) / p.point)
		if slippage > float64(req.Deviation) {
			return p.reject(req, RetcodeRequote, fmt.Sprintf("price moved %.0f points", slippage)), nil
		}
	}

	p.seq++
	orderID := strconv.FormatUint(p.seq, 10)
	if target != nil {
		target.Volume = roundVolume(target.Volume - req.Volume)
		if target.Volume <= 0 {
			p.remove(target.Ticket)
		}
		p.log.WithFields(logrus.Fields{"ticket": target.Ticket, "volume": req.Volume, "price": fill}).Info("position closed")
	} else {
		pos := &Position{
			Ticket:       orderID,
			Symbol:       symbol,
			Type:         positionTypeFor(req.Side),
			Volume:       req.Volume,
			PriceOpen:    fill,
			PriceCurrent: markPrice(positionTypeFor(req.Side), tick),
			StopLoss:     req.StopLoss,
		}
		p.positions[pos.Ticket] = pos
		p.order = append(p.order, pos.Ticket)
		p.log.WithFields(logrus.Fields{"ticket": pos.Ticket, "side": req.Side, "volume": req.Volume, "price": fill}).Info("position opened")
	}

	return OrderResult{
		Retcode: RetcodeDone,
		Comment: "Request executed",
		OrderID: orderID,
		Volume:  req.Volume,
		Price:   fill,
		Request: req,
	}, nil
}

func (p *PaperTerminal) ModifyStopLoss(ctx context.Context, ticket string, stopLoss float64) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req := OrderRequest{Action: ActionSLTP, Position: ticket, StopLoss: stopLoss}
	pos, ok := p.positions[ticket]
	if !ok {
		return p.reject(req, RetcodePositionClosed, "position already closed"), nil
	}
	req.Symbol = pos.Symbol
	if stopLoss < 0 {
		return p.reject(req, RetcodeInvalidStops, "negative stop"), nil
	}
	if tick, ok := p.ticks[pos.Symbol]; ok && stopLoss != 0 {
		if pos.Type == Long && stopLoss >= tick.Bid {
			return p.reject(req, RetcodeInvalidStops, "stop above bid"), nil
		}
		if pos.Type == Short && stopLoss <= tick.Ask {
			return p.reject(req, RetcodeInvalidStops, "stop below ask"), nil
		}
	}
	pos.StopLoss = stopLoss
	p.seq++
	return OrderResult{
		Retcode: RetcodeDone,
		Comment: "Request executed",
		OrderID: strconv.FormatUint(p.seq, 10),
		Price:   stopLoss,
		Request: req,
	}, nil
}

func (p *PaperTerminal) quote(ctx context.Context, symbol string) (Tick, error) {
	if p.feed != nil {
		tick, err := p.feed.Tick(ctx, symbol)
		if err != nil {
			return Tick{}, err
		}
		p.applyTick(tick)
		return tick, nil
	}
	tick, ok := p.ticks[symbol]
	if !ok {
		return Tick{}, fmt.Errorf("tick %s: %w", symbol, ErrUnknownSymbol)
	}
	return tick, nil
}

// refresh re-marks held symbols from the feed. Without a feed the marks only
// move through SetTick.
func (p *PaperTerminal) refresh(ctx context.Context) {
	if p.feed == nil {
		return
	}
	symbols := map[string]struct{}{}
	for _, pos := range p.positions {
		symbols[pos.Symbol] = struct{}{}
	}
	names := make([]string, 0, len(symbols))
	for s := range symbols {
		names = append(names, s)
	}
	sort.Strings(names)
	for _, s := range names {
		if _, err := p.quote(ctx, s); err != nil {
			p.log.WithError(err).WithField("symbol", s).Warn("mark to market failed")
		}
	}
}

func (p *PaperTerminal) applyTick(tick Tick) {
	p.ticks[tick.Symbol] = tick
	for _, ticket := range append([]string(nil), p.order...) {
		pos, ok := p.positions[ticket]
		if !ok || pos.Symbol != tick.Symbol {
			continue
		}
		pos.PriceCurrent = markPrice(pos.Type, tick)
		if pos.StopLoss == 0 {
			continue
		}
		hit := (pos.Type == Long && tick.Bid <= pos.StopLoss) || (pos.Type == Short && tick.Ask >= pos.StopLoss)
		if hit {
			p.log.WithFields(logrus.Fields{"ticket": ticket, "stop_loss": pos.StopLoss, "price": pos.PriceCurrent}).Info("stop loss hit")
			p.remove(ticket)
		}
	}
}

func (p *PaperTerminal) remove(ticket string) {
	delete(p.positions, ticket)
	kept := p.order[:0]
	for _, t := range p.order {
		if t != ticket {
			kept = append(kept, t)
		}
	}
	p.order = kept
}

func (p *PaperTerminal) reject(req OrderRequest, code Retcode, comment string) OrderResult {
	p.log.WithFields(logrus.Fields{"symbol": req.Symbol, "ticket": req.Position, "retcode": code}).Warn(comment)
	return OrderResult{Retcode: code, Comment: comment, Request: req}
}

func (p *PaperTerminal) nextTicket() string {
	p.seq++
	return strconv.FormatUint(p.seq, 10)
}

func positionTypeFor(side Side) PositionType {
	if side == Sell {
		return Short
	}
	return Long
}

// markPrice is the price a position would close at: bid for longs, ask for
// shorts.
func markPrice(t PositionType, tick Tick) float64 {
	if t == Short {
		return tick.Ask
	}
	return tick.Bid
}

func roundVolume(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
