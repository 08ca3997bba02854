// Package broker defines the gateway contracts the trading loop talks to and
// the adapters that implement them: an Alpaca-backed gateway and an in-memory
// paper terminal.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type PositionType string

const (
	Long  PositionType = "long"
	Short PositionType = "short"
)

// Side is the deal side that opened a position of this type.
func (t PositionType) Side() Side {
	if t == Short {
		return Sell
	}
	return Buy
}

// CloseSide is the deal side that closes a position of this type.
func (t PositionType) CloseSide() Side {
	return t.Side().Opposite()
}

type Action string

const (
	ActionDeal Action = "deal"
	ActionSLTP Action = "sltp"
)

type TimeInForce string

const (
	GTC TimeInForce = "gtc"
	Day TimeInForce = "day"
)

type FillPolicy string

const (
	FillOrKill        FillPolicy = "fok"
	ImmediateOrCancel FillPolicy = "ioc"
)

// Retcode mirrors the trade server return codes of a terminal. Only
// RetcodeDone means the request was executed.
type Retcode int

const (
	RetcodeRequote        Retcode = 10004
	RetcodeRejected       Retcode = 10006
	RetcodeDone           Retcode = 10009
	RetcodeInvalid        Retcode = 10013
	RetcodeInvalidVolume  Retcode = 10014
	RetcodeInvalidStops   Retcode = 10016
	RetcodeMarketClosed   Retcode = 10018
	RetcodePositionClosed Retcode = 10036
)

func (r Retcode) String() string {
	switch r {
	case RetcodeRequote:
		return "requote"
	case RetcodeRejected:
		return "rejected"
	case RetcodeDone:
		return "done"
	case RetcodeInvalid:
		return "invalid"
	case RetcodeInvalidVolume:
		return "invalid_volume"
	case RetcodeInvalidStops:
		return "invalid_stops"
	case RetcodeMarketClosed:
		return "market_closed"
	case RetcodePositionClosed:
		return "position_closed"
	case 0:
		return "none"
	default:
		return fmt.Sprintf("retcode_%d", int(r))
	}
}

type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Position is an open position as reported by the broker. StopLoss is zero
// when no stop is attached.
type Position struct {
	Ticket       string
	Symbol       string
	Type         PositionType
	Volume       float64
	PriceOpen    float64
	PriceCurrent float64
	StopLoss     float64
}

type OrderRequest struct {
	Action        Action
	Symbol        string
	Volume        float64
	Side          Side
	Price         float64
	StopLoss      float64
	Deviation     int
	Position      string
	TimeInForce   TimeInForce
	FillPolicy    FillPolicy
	Magic         int
	Comment       string
	ClientOrderID string
}

type OrderResult struct {
	Retcode Retcode
	Comment string
	OrderID string
	Volume  float64
	Price   float64
	Request OrderRequest
}

func (r OrderResult) OK() bool {
	return r.Retcode == RetcodeDone
}

func (r OrderResult) String() string {
	return fmt.Sprintf("OrderResult(retcode=%d %s, order=%s, volume=%g, price=%g, comment=%q)",
		int(r.Retcode), r.Retcode, r.OrderID, r.Volume, r.Price, r.Comment)
}

// MarketDataGateway supplies quotes and bar history for a symbol.
type MarketDataGateway interface {
	Tick(ctx context.Context, symbol string) (Tick, error)
	// Bars returns count bars ordered oldest to newest after skipping the
	// newest offset bars. offset=1 skips the bar that is still forming.
	Bars(ctx context.Context, symbol string, timeframe time.Duration, offset, count int) ([]Bar, error)
}

// PositionGateway exposes account positions and order execution.
type PositionGateway interface {
	// Positions lists open positions on symbol, or on every symbol when
	// symbol is empty.
	Positions(ctx context.Context, symbol string) ([]Position, error)
	PositionCount(ctx context.Context) (int, error)
	PositionByTicket(ctx context.Context, ticket string) (Position, bool, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ModifyStopLoss(ctx context.Context, ticket string, stopLoss float64) (OrderResult, error)
}

// Gateway is a full brokerage terminal.
type Gateway interface {
	MarketDataGateway
	PositionGateway
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// window trims an oldest-to-newest series by dropping the newest offset
// entries and keeping at most count of what remains.
func window(bars []Bar, offset, count int) []Bar {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(bars) {
		return []Bar{}
	}
	bars = bars[:len(bars)-offset]
	if count >= 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out
}
