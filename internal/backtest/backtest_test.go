package backtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signal-trader/internal/config"
	"signal-trader/internal/errors"
	"signal-trader/internal/market"
	"signal-trader/internal/models"
	"signal-trader/internal/portfolio"
	"signal-trader/internal/predict"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// stubProvider serves fixed bar series per symbol.
type stubProvider struct {
	bars map[string][]models.Bar
}

func (p *stubProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	bars, ok := p.bars[symbol]
	if !ok {
		return nil, errors.NewDataError(symbol, "unknown symbol", errors.ErrDataUnavailable)
	}
	ranged := market.SliceRange(bars, start, end)
	if len(ranged) == 0 {
		return nil, errors.NewDataError(symbol, "no bars in range", errors.ErrDataUnavailable)
	}
	return ranged, nil
}

func trendBars(n int, start, step float64) []models.Bar {
	out := make([]models.Bar, n)
	price := start
	for i := range out {
		out[i] = models.Bar{
			Timestamp: day(i),
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    10000,
		}
		price += step
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Data.MinBars = 5
	cfg.Simulation.LookbackDays = 0
	return &cfg
}

func newTestOrchestrator(cfg *config.Config, provider market.Provider) *Orchestrator {
	return NewOrchestrator(cfg, provider, zerolog.Nop())
}

// scriptedPredictor returns canned signals keyed by bar index, and can be
// told to fail or panic on specific bars.
type scriptedPredictor struct {
	signals  map[int]models.Signal
	failOn   map[int]bool
	panicOn  map[int]bool
	seen     int
	baseTime time.Time
}

func (p *scriptedPredictor) Name() string { return "scripted" }

func (p *scriptedPredictor) Predict(ctx context.Context, symbol string, window []models.Bar) (models.Signal, error) {
	idx := int(window[len(window)-1].Timestamp.Sub(p.baseTime).Hours() / 24)
	p.seen++
	if p.panicOn[idx] {
		panic("scripted panic")
	}
	if p.failOn[idx] {
		return models.Signal{}, fmt.Errorf("scripted failure")
	}
	if sig, ok := p.signals[idx]; ok {
		sig.Symbol = symbol
		sig.Timestamp = window[len(window)-1].Timestamp
		return sig, nil
	}
	return models.Signal{Symbol: symbol, Action: models.ActionHold, Timestamp: window[len(window)-1].Timestamp}, nil
}

func TestRun_EndToEnd(t *testing.T) {
	provider := &stubProvider{bars: map[string][]models.Bar{
		"ACME": trendBars(30, 100, 1),
	}}
	cfg := testConfig()
	// Frictionless for exact assertions.
	cfg.Simulation.CommissionRate = 0
	cfg.Simulation.SlippageBps = 0
	cfg.Simulation.SpreadBps = 0
	cfg.Simulation.ImpactCoeff = 0
	cfg.Simulation.TakeProfitPct = 0
	cfg.Simulation.StopLossPct = 0

	predictor := &scriptedPredictor{
		baseTime: day(0),
		signals: map[int]models.Signal{
			2:  {Action: models.ActionBuy, Confidence: 0.8},
			20: {Action: models.ActionSell, Confidence: 0.8},
		},
	}

	orch := newTestOrchestrator(cfg, provider)
	result, err := orch.Run(context.Background(), RunOptions{
		Symbol:    "ACME",
		StartDate: day(0),
		EndDate:   day(29),
		Predictor: predictor,
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Bars != 30 {
		t.Errorf("bars = %d, want 30", result.Bars)
	}
	if len(result.EquityCurve) != 30 {
		t.Errorf("equity curve has %d points, want 30", len(result.EquityCurve))
	}
	if result.SkippedPredictions != 0 {
		t.Errorf("skipped = %d, want 0", result.SkippedPredictions)
	}
	// Buy at 102, sell at 120: the uptrend must make money.
	if len(result.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(result.Trades))
	}
	if result.Trades[0].PnL <= 0 {
		t.Errorf("pnl = %f, want positive in uptrend", result.Trades[0].PnL)
	}
	if result.Metrics.TotalReturn <= 0 {
		t.Errorf("total return = %f, want positive", result.Metrics.TotalReturn)
	}
	if result.FinalEquity <= result.InitialCapital {
		t.Errorf("final equity %f should beat initial %f", result.FinalEquity, result.InitialCapital)
	}
	if result.RunID == "" {
		t.Error("run id must be set")
	}
}

func TestRun_PredictorFailuresBecomeHolds(t *testing.T) {
	provider := &stubProvider{bars: map[string][]models.Bar{
		"ACME": trendBars(20, 100, 1),
	}}
	predictor := &scriptedPredictor{
		baseTime: day(0),
		failOn:   map[int]bool{3: true, 7: true},
		panicOn:  map[int]bool{11: true},
	}

	orch := newTestOrchestrator(testConfig(), provider)
	result, err := orch.Run(context.Background(), RunOptions{
		Symbol:    "ACME",
		StartDate: day(0),
		EndDate:   day(19),
		Predictor: predictor,
	})
	if err != nil {
		t.Fatalf("provider failures must not abort the run: %v", err)
	}
	if result.SkippedPredictions != 3 {
		t.Errorf("skipped = %d, want 3 (two errors, one panic)", result.SkippedPredictions)
	}
	if len(result.EquityCurve) != 20 {
		t.Errorf("every bar still gets a snapshot: %d of 20", len(result.EquityCurve))
	}
}

func TestRun_InsufficientHistory(t *testing.T) {
	provider := &stubProvider{bars: map[string][]models.Bar{
		"ACME": trendBars(3, 100, 1),
	}}

	orch := newTestOrchestrator(testConfig(), provider)
	_, err := orch.Run(context.Background(), RunOptions{
		Symbol:    "ACME",
		Strategy:  "sma_crossover",
		StartDate: day(0),
		EndDate:   day(9),
	})
	if !errors.Is(err, errors.ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	provider := &stubProvider{bars: map[string][]models.Bar{
		"ACME": trendBars(30, 100, 1),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := newTestOrchestrator(testConfig(), provider)
	_, err := orch.Run(ctx, RunOptions{
		Symbol:    "ACME",
		Strategy:  "sma_crossover",
		StartDate: day(0),
		EndDate:   day(29),
	})
	if !errors.Is(err, errors.ErrRunCancelled) {
		t.Fatalf("err = %v, want ErrRunCancelled", err)
	}
}

func TestRunPortfolio_SkipsBadSymbolAndContinues(t *testing.T) {
	provider := &stubProvider{bars: map[string][]models.Bar{
		"GOOD": trendBars(40, 100, 0.5),
		"ALSO": trendBars(40, 50, 0.2),
	}}

	orch := newTestOrchestrator(testConfig(), provider)
	result, err := orch.RunPortfolio(context.Background(), PortfolioOptions{
		Symbols:   []string{"GOOD", "MISSING", "ALSO"},
		Strategy:  "sma_crossover",
		StartDate: day(0),
		EndDate:   day(39),
	})
	if err != nil {
		t.Fatalf("one bad symbol must not abort the portfolio: %v", err)
	}

	if c := result.Contributions["MISSING"]; c.SkippedReason == "" {
		t.Error("missing symbol should carry a skip reason")
	}
	if c := result.Contributions["GOOD"]; c.SkippedReason != "" {
		t.Errorf("good symbol wrongly skipped: %s", c.SkippedReason)
	}
	if len(result.EquityCurve) != 40 {
		t.Errorf("equity curve has %d points, want 40", len(result.EquityCurve))
	}
	if result.Rebalances < 1 {
		t.Error("at least the initial rebalance should fire")
	}
	if _, ok := result.CorrelationMatrix["GOOD"]["ALSO"]; !ok {
		t.Error("correlation matrix should cover active symbols")
	}
	if result.DiversificationScore < 0 || result.DiversificationScore > 100 {
		t.Errorf("diversification score out of range: %f", result.DiversificationScore)
	}
}

func TestRunPortfolio_NoBarsInTradingRange(t *testing.T) {
	provider := &stubProvider{bars: map[string][]models.Bar{
		"GOOD": trendBars(20, 100, 0.5),
	}}

	// Warmup reaches back into the data, but every bar precedes the start.
	cfg := testConfig()
	cfg.Simulation.LookbackDays = 30

	orch := newTestOrchestrator(cfg, provider)
	_, err := orch.RunPortfolio(context.Background(), PortfolioOptions{
		Symbols:   []string{"GOOD"},
		Strategy:  "sma_crossover",
		StartDate: day(40),
		EndDate:   day(60),
	})
	if !errors.Is(err, errors.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable when no bar reaches the trading range", err)
	}
}

func TestRebalance_AllocatesAcrossDesiredSymbolsOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.MaxPositionSize = 1.0
	cfg.Portfolio.AllocationStrategy = "equal_weight"

	orch := newTestOrchestrator(cfg, &stubProvider{})

	data := map[string]*symbolData{}
	for _, sym := range []string{"GOOD", "ALSO"} {
		bars := trendBars(10, 100, 0)
		byTime := make(map[time.Time]int, len(bars))
		for i, b := range bars {
			byTime[b.Timestamp] = i
		}
		data[sym] = &symbolData{bars: bars, byTime: byTime}
	}

	ledger := newLedger(cfg, zerolog.Nop())
	manager := portfolio.NewManager(cfg.Portfolio, zerolog.Nop())
	desired := map[string]bool{"GOOD": true, "ALSO": false}

	orch.maybeRebalance(ledger, manager, data, []string{"GOOD", "ALSO"}, map[string]float64{}, desired, day(9))

	if ledger.Position("ALSO") != nil {
		t.Fatal("withdrawn symbol must not be bought")
	}
	p := ledger.Position("GOOD")
	if p == nil {
		t.Fatal("desired symbol should be allocated")
	}
	// Equal weight over the single desired symbol targets the full equity;
	// splitting across both would stop near half.
	if p.Shares <= 600 {
		t.Errorf("shares = %d, want the full-equity allocation", p.Shares)
	}
}

func TestRunPortfolio_AllSymbolsBad(t *testing.T) {
	provider := &stubProvider{bars: map[string][]models.Bar{}}

	orch := newTestOrchestrator(testConfig(), provider)
	_, err := orch.RunPortfolio(context.Background(), PortfolioOptions{
		Symbols:   []string{"NOPE", "ALSO_NOPE"},
		Strategy:  "sma_crossover",
		StartDate: day(0),
		EndDate:   day(39),
	})
	if !errors.Is(err, errors.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}

var _ predict.Provider = (*scriptedPredictor)(nil)
