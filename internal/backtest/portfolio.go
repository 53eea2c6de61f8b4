package backtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"signal-trader/internal/analytics"
	"signal-trader/internal/config"
	"signal-trader/internal/errors"
	"signal-trader/internal/logging"
	"signal-trader/internal/market"
	"signal-trader/internal/models"
	"signal-trader/internal/portfolio"
	"signal-trader/internal/predict"
	"signal-trader/internal/sim"
)

func newLedger(cfg *config.Config, logger zerolog.Logger) *sim.Simulator {
	return sim.NewSimulator(cfg.Simulation, cfg.Risk, logger)
}

// PortfolioOptions configures a multi-symbol run.
type PortfolioOptions struct {
	Symbols   []string
	Strategy  string
	Params    predict.Params
	StartDate time.Time
	EndDate   time.Time
}

// symbolData is one symbol's prepared history.
type symbolData struct {
	bars    []models.Bar
	byTime  map[time.Time]int
	skipped string // non-empty when the symbol was dropped
}

// RunPortfolio executes a multi-symbol backtest sharing one capital pool.
// Symbols whose data cannot be loaded are reported and skipped; the run
// continues with the rest.
func (o *Orchestrator) RunPortfolio(ctx context.Context, opts PortfolioOptions) (*models.PortfolioBacktestResult, error) {
	if len(opts.Symbols) == 0 {
		return nil, errors.NewValidationError("symbols", opts.Symbols, "at least one symbol required")
	}

	predictor, err := predict.New(opts.Strategy, opts.Params)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := logging.WithRun(o.logger, runID)

	data, err := o.prepareSymbols(ctx, opts)
	if err != nil {
		return nil, err
	}

	active := make([]string, 0, len(data))
	for _, sym := range opts.Symbols {
		if data[sym].skipped == "" {
			active = append(active, sym)
		}
	}
	if len(active) == 0 {
		return nil, errors.Wrap(errors.ErrDataUnavailable, "no symbol has usable data")
	}

	timeline := buildTimeline(data, active)

	ledger := newLedger(o.cfg, logger)
	manager := portfolio.NewManager(o.cfg.Portfolio, logger)
	confidence := make(map[string]float64, len(active))
	// desired tracks which symbols the strategy currently wants held:
	// a BUY opens interest, a SELL withdraws it, HOLD leaves it unchanged.
	// Rebalancing allocates only across desired symbols.
	desired := make(map[string]bool, len(active))
	skippedPredictions := 0
	bars := 0

	for _, ts := range timeline {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrRunCancelled, err.Error())
		}
		if ts.Before(opts.StartDate) {
			continue
		}
		bars++

		// Exit rules run before any new signal for the bar.
		for _, sym := range active {
			if bar, ok := barAt(data[sym], ts); ok {
				ledger.CheckExits(sym, bar)
			}
		}

		for _, sym := range active {
			bar, ok := barAt(data[sym], ts)
			if !ok {
				continue
			}
			window := data[sym].bars[:data[sym].byTime[ts]+1]
			signal, ok := o.predictBar(ctx, predictor, sym, window, logger)
			if !ok {
				skippedPredictions++
				continue
			}
			confidence[sym] = signal.Confidence
			switch signal.Action {
			case models.ActionBuy:
				desired[sym] = true
			case models.ActionSell:
				desired[sym] = false
			}
			ledger.ExecuteSignal(signal, bar)
		}

		o.maybeRebalance(ledger, manager, data, active, confidence, desired, ts)

		ledger.MarkToMarket(ts)
	}

	if bars == 0 {
		return nil, errors.NewDataError(opts.Symbols[0], "no bars in trading range", errors.ErrDataUnavailable)
	}

	end := timeline[len(timeline)-1]

	// Final weights are valued at each symbol's last close, before the
	// forced END_OF_RUN liquidation wipes the book.
	finalWeights := make(map[string]float64)
	if equity := ledger.Equity(); equity > 0 {
		for sym, p := range ledger.Positions() {
			sd := data[sym]
			if sd == nil || len(sd.bars) == 0 {
				continue
			}
			lastClose := sd.bars[len(sd.bars)-1].Close
			finalWeights[sym] = lastClose * float64(p.Shares) / equity
		}
	}

	ledger.CloseAll(end)

	curve := ledger.EquityCurve()
	trades := ledger.Trades()

	returns := fullRangeReturns(data, active)
	matrix := portfolio.CorrelationMatrix(returns)

	result := &models.PortfolioBacktestResult{
		RunID:                runID,
		Symbols:              opts.Symbols,
		AllocationStrategy:   o.cfg.Portfolio.AllocationStrategy,
		StartDate:            opts.StartDate,
		EndDate:              end,
		InitialCapital:       o.cfg.Simulation.InitialCapital,
		FinalEquity:          ledger.Equity(),
		Rebalances:           manager.Rebalances(),
		SkippedPredictions:   skippedPredictions,
		EquityCurve:          curve,
		Trades:               trades,
		Metrics:              analytics.Compute(curve, trades),
		Contributions:        buildContributions(opts.Symbols, data, trades, finalWeights, o.cfg.Simulation.InitialCapital),
		CorrelationMatrix:    matrix,
		DiversificationScore: portfolio.DiversificationScore(matrix),
	}

	logger.Info().
		Int("symbols", len(active)).
		Int("rebalances", result.Rebalances).
		Float64("final_equity", result.FinalEquity).
		Msg("portfolio backtest complete")

	return result, nil
}

// prepareSymbols loads and validates history for every symbol concurrently.
// Load failures mark the symbol skipped instead of failing the run.
func (o *Orchestrator) prepareSymbols(ctx context.Context, opts PortfolioOptions) (map[string]*symbolData, error) {
	warmupStart := opts.StartDate.AddDate(0, 0, -o.cfg.Simulation.LookbackDays)

	var mu sync.Mutex
	data := make(map[string]*symbolData, len(opts.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range opts.Symbols {
		sym := sym
		g.Go(func() error {
			sd := &symbolData{}
			bars, err := o.provider.GetBars(gctx, sym, warmupStart, opts.EndDate)
			switch {
			case err != nil:
				sd.skipped = err.Error()
				o.logger.Warn().Str("symbol", sym).Err(err).Msg("symbol skipped")
			case len(bars) < o.cfg.Data.MinBars:
				sd.skipped = "insufficient history"
				o.logger.Warn().Str("symbol", sym).Int("bars", len(bars)).Msg("symbol skipped")
			default:
				sd.bars = bars
				sd.byTime = make(map[time.Time]int, len(bars))
				for i, b := range bars {
					sd.byTime[b.Timestamp] = i
				}
			}
			mu.Lock()
			data[sym] = sd
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return data, nil
}

// maybeRebalance recomputes targets and adjusts positions when a trigger
// fires. Targets are allocated across desired symbols only, so weight freed
// by a withdrawn symbol redistributes to the rest instead of parking in
// cash. Held symbols outside the desired set are sold down to zero. Sells
// execute before buys so freed cash funds the increases.
func (o *Orchestrator) maybeRebalance(ledger *sim.Simulator, manager *portfolio.Manager, data map[string]*symbolData, active []string, confidence map[string]float64, desired map[string]bool, ts time.Time) {
	stats := make(map[string]portfolio.SymbolStats, len(active))
	quotes := make(map[string]float64, len(active))
	window := o.cfg.Portfolio.VolatilityWindow

	for _, sym := range active {
		idx, ok := data[sym].byTime[ts]
		if !ok {
			continue
		}
		quotes[sym] = data[sym].bars[idx].Close
		if !desired[sym] {
			continue
		}
		lo := idx - window
		if lo < 0 {
			lo = 0
		}
		closes := market.Closes(data[sym].bars[lo : idx+1])
		st := portfolio.SymbolStats{
			Returns:    market.Returns(closes),
			Confidence: confidence[sym],
		}
		fillTradeCounters(&st, ledger.Trades(), sym)
		stats[sym] = st
	}
	if len(quotes) == 0 {
		return
	}

	target, err := manager.Targets(stats)
	if err != nil {
		return
	}

	equity := ledger.Equity()
	held := make(map[string]int, len(active))
	for sym, p := range ledger.Positions() {
		held[sym] = p.Shares
	}
	current := portfolio.CurrentWeights(held, equity, quotes)

	fire, trigger := manager.ShouldRebalance(ts, current, target)
	if !fire {
		return
	}

	// Risk correlation inputs refresh at each rebalance.
	returnsBySymbol := make(map[string][]float64, len(stats))
	for sym, st := range stats {
		returnsBySymbol[sym] = st.Returns
	}
	ledger.Risk().SetReturns(returnsBySymbol)

	targetShares := portfolio.TargetShares(target, equity, quotes)
	for sym := range held {
		if _, ok := targetShares[sym]; !ok {
			targetShares[sym] = 0
		}
	}

	ordered := make([]string, 0, len(targetShares))
	for sym := range targetShares {
		ordered = append(ordered, sym)
	}
	sort.Slice(ordered, func(i, j int) bool {
		di := targetShares[ordered[i]] - held[ordered[i]]
		dj := targetShares[ordered[j]] - held[ordered[j]]
		if di != dj {
			return di < dj
		}
		return ordered[i] < ordered[j]
	})

	orders := 0
	for _, sym := range ordered {
		quote, ok := quotes[sym]
		if !ok {
			continue
		}
		if res := ledger.AdjustPosition(sym, targetShares[sym], quote, ts); res != nil && res.Executed() {
			orders++
		}
	}

	manager.MarkRebalanced(ts, trigger, orders, target)
}

func fillTradeCounters(st *portfolio.SymbolStats, trades []models.ClosedTrade, symbol string) {
	var sumWin, sumLoss float64
	for _, t := range trades {
		if t.Symbol != symbol {
			continue
		}
		if t.PnL > 0 {
			st.Wins++
			sumWin += t.PnL
		} else {
			st.Losses++
			sumLoss += -t.PnL
		}
	}
	if st.Wins > 0 {
		st.AvgWin = sumWin / float64(st.Wins)
	}
	if st.Losses > 0 {
		st.AvgLoss = sumLoss / float64(st.Losses)
	}
}

// buildTimeline returns the sorted union of all active symbols' timestamps.
func buildTimeline(data map[string]*symbolData, active []string) []time.Time {
	seen := make(map[time.Time]bool)
	var timeline []time.Time
	for _, sym := range active {
		for _, b := range data[sym].bars {
			if !seen[b.Timestamp] {
				seen[b.Timestamp] = true
				timeline = append(timeline, b.Timestamp)
			}
		}
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return timeline
}

func barAt(sd *symbolData, ts time.Time) (models.Bar, bool) {
	idx, ok := sd.byTime[ts]
	if !ok {
		return models.Bar{}, false
	}
	return sd.bars[idx], true
}

func fullRangeReturns(data map[string]*symbolData, active []string) map[string][]float64 {
	out := make(map[string][]float64, len(active))
	for _, sym := range active {
		out[sym] = market.Returns(market.Closes(data[sym].bars))
	}
	return out
}

func buildContributions(symbols []string, data map[string]*symbolData, trades []models.ClosedTrade, finalWeights map[string]float64, initialCapital float64) map[string]models.SymbolContribution {
	out := make(map[string]models.SymbolContribution, len(symbols))

	for _, sym := range symbols {
		c := models.SymbolContribution{Symbol: sym}
		if sd, ok := data[sym]; ok && sd.skipped != "" {
			c.SkippedReason = sd.skipped
			out[sym] = c
			continue
		}
		for _, t := range trades {
			if t.Symbol != sym {
				continue
			}
			c.Trades++
			c.RealizedPnL += t.PnL
		}
		if initialCapital > 0 {
			c.ReturnPct = c.RealizedPnL / initialCapital
		}
		c.FinalWeight = finalWeights[sym]
		out[sym] = c
	}
	return out
}
