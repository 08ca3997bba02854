package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string
	// DataBaseURL overrides the market data host. Empty uses the SDK default.
	DataBaseURL string
	Feed        string
	// Point converts order deviation into a limit price offset. Zero sends
	// plain market orders.
	Point float64
	// BarLookback bounds how far back bars are requested before the newest
	// ones are kept.
	BarLookback time.Duration
}

// AlpacaGateway maps the terminal contract onto Alpaca. Alpaca nets one
// position per symbol, so the asset id serves as the ticket and the
// stop-loss is the resting stop order on that symbol.
type AlpacaGateway struct {
	client   *alpaca.Client
	data     *marketdata.Client
	feed     marketdata.Feed
	point    float64
	lookback time.Duration
	log      *logrus.Entry
}

func NewAlpacaGateway(opts AlpacaOptions, log *logrus.Entry) *AlpacaGateway {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	lookback := opts.BarLookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &AlpacaGateway{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.DataBaseURL,
		}),
		feed:     parseFeed(opts.Feed),
		point:    opts.Point,
		lookback: lookback,
		log:      log.WithField("component", "alpaca"),
	}
}

func (g *AlpacaGateway) Tick(ctx context.Context, symbol string) (Tick, error) {
	quote, err := g.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{Feed: g.feed})
	if err != nil {
		g.log.WithError(err).WithField("symbol", symbol).Error("fetch latest quote failed")
		return Tick{}, fmt.Errorf("latest quote %s: %w", symbol, err)
	}
	if quote == nil {
		return Tick{}, fmt.Errorf("latest quote %s: %w", symbol, ErrUnknownSymbol)
	}
	return Tick{Symbol: symbol, Bid: quote.BidPrice, Ask: quote.AskPrice, Time: quote.Timestamp}, nil
}

func (g *AlpacaGateway) Bars(ctx context.Context, symbol string, timeframe time.Duration, offset, count int) ([]Bar, error) {
	tf, err := timeFrame(timeframe)
	if err != nil {
		return nil, err
	}
	end := time.Now().UTC()
	raw, err := g.data.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     end.Add(-g.lookback),
		End:       end,
		Feed:      g.feed,
	})
	if err != nil {
		g.log.WithError(err).WithField("symbol", symbol).Error("fetch bars failed")
		return nil, fmt.Errorf("bars %s: %w", symbol, err)
	}
	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	g.log.WithFields(logrus.Fields{"symbol": symbol, "count": len(bars)}).Debug("bars fetched")
	return window(bars, offset, count), nil
}

func (g *AlpacaGateway) Positions(ctx context.Context, symbol string) ([]Position, error) {
	raw, err := g.client.GetPositions()
	if err != nil {
		g.log.WithError(err).Error("fetch positions failed")
		return nil, fmt.Errorf("positions: %w", err)
	}
	stops, err := g.stopOrders()
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		pos := Position{
			Ticket:    p.AssetID,
			Symbol:    p.Symbol,
			Type:      Long,
			Volume:    p.Qty.Abs().InexactFloat64(),
			PriceOpen: p.AvgEntryPrice.InexactFloat64(),
		}
		if strings.EqualFold(p.Side, "short") || p.Qty.IsNegative() {
			pos.Type = Short
		}
		if stop, ok := stops[p.Symbol]; ok && stop.StopPrice != nil {
			pos.StopLoss = stop.StopPrice.InexactFloat64()
		}
		tick, err := g.Tick(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		pos.PriceCurrent = markPrice(pos.Type, tick)
		out = append(out, pos)
	}
	return out, nil
}

func (g *AlpacaGateway) PositionCount(ctx context.Context) (int, error) {
	raw, err := g.client.GetPositions()
	if err != nil {
		g.log.WithError(err).Error("fetch positions failed")
		return 0, fmt.Errorf("positions: %w", err)
	}
	return len(raw), nil
}

func (g *AlpacaGateway) PositionByTicket(ctx context.Context, ticket string) (Position, bool, error) {
	positions, err := g.Positions(ctx, "")
	if err != nil {
		return Position{}, false, err
	}
	for _, p := range positions {
		if p.Ticket == ticket {
			return p, true, nil
		}
	}
	return Position{}, false, nil
}

func (g *AlpacaGateway) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Action == ActionSLTP {
		return g.ModifyStopLoss(ctx, req.Position, req.StopLoss)
	}
	if req.Position != "" {
		// A resting stop holds the quantity, so it goes before the close.
		if err := g.cancelStops(req.Symbol); err != nil {
			return OrderResult{}, err
		}
	}

	qty := decimal.NewFromFloat(req.Volume)
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpacaSide(req.Side),
		Type:          alpaca.Market,
		TimeInForce:   orderTimeInForce(qty, alpacaTimeInForce(req.TimeInForce, req.FillPolicy)),
		ClientOrderID: req.ClientOrderID,
	}
	if limit, ok := limitPrice(req.Side, req.Price, req.Deviation, g.point); ok {
		orderReq.Type = alpaca.Limit
		orderReq.LimitPrice = &limit
	}

	order, err := g.client.PlaceOrder(orderReq)
	if err != nil {
		return g.rejected(req, err)
	}
	result := OrderResult{
		Retcode: RetcodeDone,
		Comment: string(order.Status),
		OrderID: order.ID,
		Volume:  req.Volume,
		Price:   req.Price,
		Request: req,
	}
	if order.FilledAvgPrice != nil {
		result.Price = order.FilledAvgPrice.InexactFloat64()
	}
	g.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"symbol":   req.Symbol,
		"side":     req.Side,
		"qty":      req.Volume,
		"type":     orderReq.Type,
		"status":   result.Comment,
	}).Info("place order success")
	return result, nil
}

func (g *AlpacaGateway) ModifyStopLoss(ctx context.Context, ticket string, stopLoss float64) (OrderResult, error) {
	req := OrderRequest{Action: ActionSLTP, Position: ticket, StopLoss: stopLoss}
	pos, ok, err := g.PositionByTicket(ctx, ticket)
	if err != nil {
		return OrderResult{}, err
	}
	if !ok {
		return OrderResult{Retcode: RetcodePositionClosed, Comment: "position already closed", Request: req}, nil
	}
	req.Symbol = pos.Symbol
	stopPrice := decimal.NewFromFloat(stopLoss).Round(pricePlaces(stopLoss))

	stops, err := g.stopOrders()
	if err != nil {
		return OrderResult{}, err
	}
	var order *alpaca.Order
	if existing, found := stops[pos.Symbol]; found {
		order, err = g.client.ReplaceOrder(existing.ID, alpaca.ReplaceOrderRequest{StopPrice: &stopPrice})
	} else {
		qty := decimal.NewFromFloat(pos.Volume)
		order, err = g.client.PlaceOrder(alpaca.PlaceOrderRequest{
			Symbol:      pos.Symbol,
			Qty:         &qty,
			Side:        alpacaSide(pos.Type.CloseSide()),
			Type:        alpaca.Stop,
			TimeInForce: orderTimeInForce(qty, alpaca.GTC),
			StopPrice:   &stopPrice,
		})
	}
	if err != nil {
		return g.rejected(req, err)
	}
	g.log.WithFields(logrus.Fields{"order_id": order.ID, "symbol": pos.Symbol, "stop_price": stopPrice.String()}).Info("stop loss set")
	return OrderResult{
		Retcode: RetcodeDone,
		Comment: string(order.Status),
		OrderID: order.ID,
		Price:   stopPrice.InexactFloat64(),
		Request: req,
	}, nil
}

// stopOrders returns the open stop order per symbol.
func (g *AlpacaGateway) stopOrders() (map[string]alpaca.Order, error) {
	orders, err := g.client.GetOrders(alpaca.GetOrdersRequest{Status: "open"})
	if err != nil {
		g.log.WithError(err).Error("fetch open orders failed")
		return nil, fmt.Errorf("open orders: %w", err)
	}
	stops := make(map[string]alpaca.Order, len(orders))
	for _, o := range orders {
		if o.Type == alpaca.Stop {
			stops[o.Symbol] = o
		}
	}
	return stops, nil
}

func (g *AlpacaGateway) cancelStops(symbol string) error {
	stops, err := g.stopOrders()
	if err != nil {
		return err
	}
	if stop, ok := stops[symbol]; ok {
		if err := g.client.CancelOrder(stop.ID); err != nil {
			g.log.WithError(err).WithField("order_id", stop.ID).Error("cancel stop order failed")
			return fmt.Errorf("cancel stop %s: %w", stop.ID, err)
		}
	}
	return nil
}

// rejected turns a broker-side refusal into a result; transport failures stay
// errors.
func (g *AlpacaGateway) rejected(req OrderRequest, err error) (OrderResult, error) {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		g.log.WithFields(logrus.Fields{"symbol": req.Symbol, "status": apiErr.StatusCode}).Warn("order rejected: " + apiErr.Message)
		code := RetcodeRejected
		if apiErr.StatusCode == 422 {
			code = RetcodeInvalid
		}
		return OrderResult{Retcode: code, Comment: apiErr.Message, Request: req}, nil
	}
	g.log.WithError(err).WithField("symbol", req.Symbol).Error("place order failed")
	return OrderResult{}, fmt.Errorf("place order %s: %w", req.Symbol, err)
}

func alpacaSide(side Side) alpaca.Side {
	if side == Sell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func alpacaTimeInForce(tif TimeInForce, fill FillPolicy) alpaca.TimeInForce {
	switch fill {
	case FillOrKill:
		return alpaca.FOK
	case ImmediateOrCancel:
		return alpaca.IOC
	}
	if tif == Day {
		return alpaca.Day
	}
	return alpaca.GTC
}

// orderTimeInForce downgrades fractional quantities to day orders, the only
// duration Alpaca accepts for them.
func orderTimeInForce(qty decimal.Decimal, tif alpaca.TimeInForce) alpaca.TimeInForce {
	if !qty.Equal(qty.Truncate(0)) {
		return alpaca.Day
	}
	return tif
}

// limitPrice caps a market order at the requested price plus the allowed
// deviation, which is how slippage tolerance is expressed on Alpaca.
func limitPrice(side Side, price float64, deviation int, point float64) (decimal.Decimal, bool) {
	if price <= 0 || deviation <= 0 || point <= 0 {
		return decimal.Decimal{}, false
	}
	offset := decimal.NewFromFloat(point).Mul(decimal.NewFromInt(int64(deviation)))
	limit := decimal.NewFromFloat(price)
	if side == Sell {
		limit = limit.Sub(offset)
	} else {
		limit = limit.Add(offset)
	}
	return limit.Round(pricePlaces(price)), true
}

// pricePlaces is the tick precision Alpaca accepts for a price.
func pricePlaces(price float64) int32 {
	if price >= 1 {
		return 2
	}
	return 4
}

func timeFrame(d time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case d <= 0:
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe %s", d)
	case d%(24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(d/(24*time.Hour)), marketdata.Day), nil
	case d%time.Hour == 0:
		return marketdata.NewTimeFrame(int(d/time.Hour), marketdata.Hour), nil
	case d%time.Minute == 0:
		return marketdata.NewTimeFrame(int(d/time.Minute), marketdata.Min), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %s", d)
	}
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
