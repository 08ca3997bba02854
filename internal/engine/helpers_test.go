package engine

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"smatrader/internal/broker"
	"smatrader/internal/risk"
)

const testSymbol = "GBPUSD"

var testParams = OrderParams{
	Volume:      0.2,
	Deviation:   20,
	Magic:       100,
	Comment:     "sma crossover",
	MaxDistSL:   0.0006,
	TrailAmount: 0.0003,
	DefaultSL:   0.0003,
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newPaper() *broker.PaperTerminal {
	p := broker.NewPaperTerminal(nil, 0.00001, quietLog())
	p.SetTick(broker.Tick{Symbol: testSymbol, Bid: 1.2, Ask: 1.20012, Time: time.Now()})
	return p
}

func newManager(gw broker.Gateway) *OrderManager {
	return NewOrderManager(gw, risk.Gate{}, testParams, "run-1", quietLog())
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Tick(ctx context.Context, symbol string) (broker.Tick, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(broker.Tick), args.Error(1)
}

func (m *mockGateway) Bars(ctx context.Context, symbol string, timeframe time.Duration, offset, count int) ([]broker.Bar, error) {
	args := m.Called(ctx, symbol, timeframe, offset, count)
	bars, _ := args.Get(0).([]broker.Bar)
	return bars, args.Error(1)
}

func (m *mockGateway) Positions(ctx context.Context, symbol string) ([]broker.Position, error) {
	args := m.Called(ctx, symbol)
	positions, _ := args.Get(0).([]broker.Position)
	return positions, args.Error(1)
}

func (m *mockGateway) PositionCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockGateway) PositionByTicket(ctx context.Context, ticket string) (broker.Position, bool, error) {
	args := m.Called(ctx, ticket)
	return args.Get(0).(broker.Position), args.Bool(1), args.Error(2)
}

func (m *mockGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(broker.OrderResult), args.Error(1)
}

func (m *mockGateway) ModifyStopLoss(ctx context.Context, ticket string, stopLoss float64) (broker.OrderResult, error) {
	args := m.Called(ctx, ticket, stopLoss)
	return args.Get(0).(broker.OrderResult), args.Error(1)
}
