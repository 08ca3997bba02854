// Package engine runs the polling loop: it evaluates the signal on completed
// bars, reconciles positions with the signal and trails stop-losses.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"smatrader/internal/broker"
	"smatrader/internal/metrics"
	"smatrader/internal/state"
	"smatrader/internal/strategy"
)

type Config struct {
	RunID        string
	Symbol       string
	Timeframe    time.Duration
	PollInterval time.Duration
	// MaxCycles stops Run after that many cycles. Zero runs until cancelled.
	MaxCycles int
}

type Engine struct {
	cfg      Config
	gw       broker.Gateway
	strategy strategy.Strategy
	orders   *OrderManager
	store    *state.Store
	reporter *Reporter
	log      *logrus.Entry
	now      func() time.Time
}

func New(cfg Config, gw broker.Gateway, strat strategy.Strategy, orders *OrderManager, store *state.Store, reporter *Reporter, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		cfg:      cfg,
		gw:       gw,
		strategy: strat,
		orders:   orders,
		store:    store,
		reporter: reporter,
		log:      log.WithFields(logrus.Fields{"component": "engine", "symbol": cfg.Symbol}),
		now:      time.Now,
	}
}

// Run executes cycles separated by the poll interval until ctx is done or
// MaxCycles is reached.
func (e *Engine) Run(ctx context.Context) error {
	e.log.WithFields(logrus.Fields{
		"run_id":        e.cfg.RunID,
		"timeframe":     e.cfg.Timeframe,
		"poll_interval": e.cfg.PollInterval,
		"lookback":      e.strategy.Lookback(),
	}).Info("starting simple moving average crossover strategy")

	for done := 0; ; {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.RunCycle(ctx)
		done++
		if e.cfg.MaxCycles > 0 && done >= e.cfg.MaxCycles {
			e.log.WithField("cycles", done).Info("max cycles reached")
			return nil
		}
		if err := broker.WaitForContext(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// RunCycle performs one poll. Failures are recorded on the report; none of
// them end the loop.
func (e *Engine) RunCycle(ctx context.Context) state.CycleReport {
	report := state.CycleReport{
		RunID:     e.cfg.RunID,
		Cycle:     e.store.NextCycle(),
		Time:      e.now().UTC(),
		Symbol:    e.cfg.Symbol,
		Direction: string(strategy.Flat),
	}

	positions, err := e.gw.Positions(ctx, e.cfg.Symbol)
	if err != nil {
		report.Skipped = fmt.Sprintf("positions: %v", err)
		e.log.WithError(err).Warn("positions unavailable")
	}
	exposure := NewExposure(e.cfg.Symbol, positions)
	report.Exposure = exposure.Volume()
	if err == nil {
		e.store.UpdateExposure(state.Exposure{
			Symbol:    e.cfg.Symbol,
			State:     exposure.State(),
			Volume:    report.Exposure,
			Tickets:   exposure.Tickets(),
			UpdatedAt: report.Time,
		})
	}

	if report.Skipped == "" {
		e.evaluate(ctx, exposure, &report)
	}

	e.reporter.Emit(report)
	report.StopsModified = e.trailAll(ctx, &report)

	e.store.Record(report)
	e.observe(report)
	return report
}

func (e *Engine) evaluate(ctx context.Context, exposure Exposure, report *state.CycleReport) {
	sig, err := e.computeSignal(ctx)
	if err != nil {
		var insufficient *strategy.InsufficientDataError
		if errors.As(err, &insufficient) {
			report.Skipped = insufficient.Error()
			e.log.WithFields(logrus.Fields{"want": insufficient.Want, "got": insufficient.Got}).Warn("not enough bars, skipping")
			return
		}
		report.Skipped = fmt.Sprintf("signal: %v", err)
		e.log.WithError(err).Warn("signal unavailable, skipping")
		return
	}
	report.LastClose = sig.LastClose
	report.SMA = sig.SMA
	report.Direction = string(sig.Direction)
	report.BarTime = sig.BarTime

	side, ok := sig.Direction.Side()
	if !ok {
		return
	}
	outcome := e.orders.Reconcile(ctx, exposure, side)
	report.Action = outcome.Action
	report.Opened = outcome.Opened
	report.Closed = outcome.Closed
	report.Errors = append(report.Errors, outcome.Errors...)
}

func (e *Engine) computeSignal(ctx context.Context) (strategy.Signal, error) {
	bars, err := e.gw.Bars(ctx, e.cfg.Symbol, e.cfg.Timeframe, 1, e.strategy.Lookback())
	if err != nil {
		return strategy.Signal{}, fmt.Errorf("bars %s: %w", e.cfg.Symbol, err)
	}
	return e.strategy.Evaluate(bars)
}

// trailAll walks every open position on the account. Tickets are collected
// fresh each cycle.
func (e *Engine) trailAll(ctx context.Context, report *state.CycleReport) int {
	positions, err := e.gw.Positions(ctx, "")
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("trail positions: %v", err))
		e.log.WithError(err).Warn("cannot list positions for trailing")
		return 0
	}
	tickets := make([]string, 0, len(positions))
	for _, pos := range positions {
		tickets = append(tickets, pos.Ticket)
	}

	modified := 0
	for _, ticket := range tickets {
		res, err := e.orders.TrailStopLoss(ctx, ticket)
		if errors.Is(err, ErrPositionVanished) {
			e.log.WithField("ticket", ticket).Info("position closed before trailing, skipping")
			continue
		}
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			e.log.WithError(err).WithField("ticket", ticket).Warn("trailing failed")
			continue
		}
		if res.Modified && res.Result.OK() {
			modified++
		}
	}
	return modified
}

func (e *Engine) observe(report state.CycleReport) {
	result := "ok"
	switch {
	case report.Skipped != "":
		result = "skipped"
	case len(report.Errors) > 0:
		result = "error"
	}
	metrics.CyclesTotal.WithLabelValues(report.Symbol, result).Inc()
	metrics.Exposure.WithLabelValues(report.Symbol).Set(report.Exposure)
	if report.Skipped == "" {
		metrics.LastClose.WithLabelValues(report.Symbol).Set(report.LastClose)
		metrics.SMA.WithLabelValues(report.Symbol).Set(report.SMA)
	}
	metrics.Direction.WithLabelValues(report.Symbol).Set(metrics.DirectionValue(report.Direction))

	e.log.WithFields(logrus.Fields{
		"cycle":          report.Cycle,
		"exposure":       report.Exposure,
		"last_close":     report.LastClose,
		"sma":            report.SMA,
		"direction":      report.Direction,
		"action":         report.Action,
		"stops_modified": report.StopsModified,
		"skipped":        report.Skipped,
		"result":         result,
	}).Info("cycle complete")
}
