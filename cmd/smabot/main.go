package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"smatrader/internal/broker"
	"smatrader/internal/config"
	"smatrader/internal/engine"
	"smatrader/internal/logger"
	"smatrader/internal/metrics"
	"smatrader/internal/risk"
	"smatrader/internal/state"
	"smatrader/internal/strategy"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	base, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(2)
	}

	runID := generateRunID()
	log := base.WithField("run_id", runID)

	gw := newGateway(cfg, log)
	store := state.NewStore(runID, cfg.HistorySize)

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr, store, log.WithField("component", "metrics"))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("metrics server shutdown failed")
			}
		}()
		log.WithField("addr", cfg.MetricsAddr).Info("metrics endpoint listening")
	}

	gate := risk.Gate{KillSwitch: cfg.KillSwitch, MaxVolume: cfg.MaxVolume, MaxSpread: cfg.MaxSpread}
	orders := engine.NewOrderManager(gw, gate, engine.OrderParams{
		Volume:      cfg.Volume,
		Deviation:   cfg.Deviation,
		Magic:       cfg.Magic,
		Comment:     cfg.Comment,
		MaxDistSL:   cfg.MaxDistSL,
		TrailAmount: cfg.TrailAmount,
		DefaultSL:   cfg.DefaultSL,
	}, runID, log)
	reporter := engine.NewReporter(os.Stdout, cfg.ReportFormat)
	loop := engine.New(engine.Config{
		RunID:        runID,
		Symbol:       cfg.Symbol,
		Timeframe:    cfg.Timeframe,
		PollInterval: cfg.PollInterval,
		MaxCycles:    cfg.MaxCycles,
	}, gw, strategy.SMA{Period: cfg.SMAPeriod}, orders, store, reporter, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"broker": cfg.Broker,
		"symbol": cfg.Symbol,
		"volume": cfg.Volume,
	}).Info("starting bot")

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("trading loop stopped")
	}
	if err := reporter.Flush(); err != nil {
		log.WithError(err).Warn("failed to flush reports")
	}
	log.Info("bot shutdown complete")
}

func newGateway(cfg config.Config, log *logrus.Entry) broker.Gateway {
	alpacaOpts := broker.AlpacaOptions{
		APIKey:      cfg.Alpaca.APIKey,
		APISecret:   cfg.Alpaca.APISecret,
		BaseURL:     cfg.Alpaca.BaseURL,
		DataBaseURL: cfg.Alpaca.DataBaseURL,
		Feed:        cfg.Alpaca.Feed,
		Point:       cfg.Point,
		BarLookback: cfg.Alpaca.BarLookback,
	}
	if cfg.Broker == config.BrokerAlpaca {
		return broker.NewAlpacaGateway(alpacaOpts, log)
	}

	var feed broker.MarketDataGateway
	if cfg.Paper.Feed == config.FeedAlpaca {
		feed = broker.NewAlpacaGateway(alpacaOpts, log)
	} else {
		feed = broker.NewSyntheticFeed(cfg.Paper.BasePrice, cfg.Paper.Amplitude, cfg.Paper.Spread, cfg.Paper.WaveBars)
	}
	return broker.NewPaperTerminal(feed, cfg.Point, log)
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	return timestamp + "-" + uuid.NewString()[:8]
}
