// Package backtest orchestrates simulation runs: it feeds historical bars
// through a prediction provider into the execution ledger and assembles the
// run artifacts.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signal-trader/internal/analytics"
	"signal-trader/internal/config"
	"signal-trader/internal/errors"
	"signal-trader/internal/logging"
	"signal-trader/internal/market"
	"signal-trader/internal/models"
	"signal-trader/internal/predict"
)

// Orchestrator wires a market data provider and a prediction provider into
// simulation runs.
type Orchestrator struct {
	cfg      *config.Config
	provider market.Provider
	logger   zerolog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg *config.Config, provider market.Provider, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, provider: provider, logger: logger}
}

// RunOptions configures a single-symbol run.
type RunOptions struct {
	Symbol    string
	Strategy  string
	Params    predict.Params
	StartDate time.Time
	EndDate   time.Time

	// Predictor overrides strategy-based construction when set.
	Predictor predict.Provider
}

// Run executes a single-symbol backtest. Bars before StartDate (the lookback
// warmup) feed the predictor but are never traded.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*models.BacktestResult, error) {
	predictor := opts.Predictor
	if predictor == nil {
		built, err := predict.New(opts.Strategy, opts.Params)
		if err != nil {
			return nil, err
		}
		predictor = built
	}

	warmupStart := opts.StartDate.AddDate(0, 0, -o.cfg.Simulation.LookbackDays)
	bars, err := o.provider.GetBars(ctx, opts.Symbol, warmupStart, opts.EndDate)
	if err != nil {
		return nil, err
	}
	if len(bars) < o.cfg.Data.MinBars {
		return nil, errors.NewDataError(opts.Symbol,
			fmt.Sprintf("only %d bars available, need %d", len(bars), o.cfg.Data.MinBars),
			errors.ErrInsufficientHistory)
	}

	runID := uuid.NewString()
	logger := logging.WithRun(logging.WithSymbol(o.logger, opts.Symbol), runID)
	ledger := newLedger(o.cfg, logger)

	skipped := 0
	traded := 0
	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrRunCancelled, err.Error())
		}
		if bar.Timestamp.Before(opts.StartDate) {
			continue
		}
		traded++

		ledger.CheckExits(opts.Symbol, bar)

		signal, ok := o.predictBar(ctx, predictor, opts.Symbol, bars[:i+1], logger)
		if !ok {
			skipped++
		} else {
			ledger.ExecuteSignal(signal, bar)
		}

		ledger.MarkToMarket(bar.Timestamp)
	}

	if traded == 0 {
		return nil, errors.NewDataError(opts.Symbol, "no bars in trading range", errors.ErrDataUnavailable)
	}

	end := bars[len(bars)-1].Timestamp
	ledger.CloseAll(end)

	curve := ledger.EquityCurve()
	trades := ledger.Trades()

	result := &models.BacktestResult{
		RunID:              runID,
		Symbol:             opts.Symbol,
		Strategy:           predictor.Name(),
		StartDate:          opts.StartDate,
		EndDate:            end,
		InitialCapital:     o.cfg.Simulation.InitialCapital,
		FinalEquity:        ledger.Equity(),
		Bars:               traded,
		SkippedPredictions: skipped,
		EquityCurve:        curve,
		Trades:             trades,
		Metrics:            analytics.Compute(curve, trades),
	}

	logger.Info().
		Float64("final_equity", result.FinalEquity).
		Float64("total_return", result.Metrics.TotalReturn).
		Int("trades", result.Metrics.TotalTrades).
		Msg("backtest complete")

	return result, nil
}

// predictBar asks the provider for a signal, converting errors and panics
// into a skipped bar. A failed prediction never aborts a run.
func (o *Orchestrator) predictBar(ctx context.Context, p predict.Provider, symbol string, window []models.Bar, logger zerolog.Logger) (signal models.Signal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Time("bar", window[len(window)-1].Timestamp).
				Msg("prediction provider panicked")
			ok = false
		}
	}()

	signal, err := p.Predict(ctx, symbol, window)
	if err != nil {
		perr := &errors.PredictionError{
			Symbol:    symbol,
			Timestamp: window[len(window)-1].Timestamp.Format("2006-01-02"),
			Err:       err,
		}
		logger.Warn().Err(perr).Msg("prediction failed, holding")
		return models.Signal{}, false
	}
	return signal, true
}
