package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"signal-trader/internal/models"
)

func curveOf(values ...float64) []models.EquitySnapshot {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.EquitySnapshot, len(values))
	for i, v := range values {
		out[i] = models.EquitySnapshot{
			Timestamp:   base.AddDate(0, 0, i),
			Cash:        v,
			TotalEquity: v,
		}
	}
	return out
}

func tradeOf(pnl, commission float64) models.ClosedTrade {
	return models.ClosedTrade{Symbol: "ACME", PnL: pnl, CommissionPaid: commission, Shares: 10, EntryPrice: 100}
}

func TestCompute_TotalReturn(t *testing.T) {
	m := Compute(curveOf(100000, 105000, 110000), nil)
	if math.Abs(m.TotalReturn-0.10) > 1e-9 {
		t.Errorf("total return = %f, want 0.10", m.TotalReturn)
	}
}

func TestCompute_EmptyInputsAreAllZero(t *testing.T) {
	m := Compute(nil, nil)
	if m.TotalReturn != 0 || m.SharpeRatio != 0 || m.MaxDrawdown != 0 || m.WinRate != 0 {
		t.Errorf("empty inputs should produce zero metrics, got %+v", m)
	}
}

func TestCompute_FlatCurveHasZeroRatios(t *testing.T) {
	// Zero volatility means the Sharpe denominator is zero, never Inf.
	m := Compute(curveOf(100000, 100000, 100000, 100000), nil)
	if m.SharpeRatio != 0 {
		t.Errorf("sharpe = %f, want 0 for flat curve", m.SharpeRatio)
	}
	if m.SortinoRatio != 0 {
		t.Errorf("sortino = %f, want 0 for flat curve", m.SortinoRatio)
	}
	if m.Volatility != 0 {
		t.Errorf("volatility = %f, want 0 for flat curve", m.Volatility)
	}
}

func TestCompute_MaxDrawdownAndDuration(t *testing.T) {
	// Peak 120, trough 90: drawdown 25%. Below-peak stretch lasts 3 bars.
	m := Compute(curveOf(100, 120, 100, 90, 110, 130), nil)
	if math.Abs(m.MaxDrawdown-0.25) > 1e-9 {
		t.Errorf("max drawdown = %f, want 0.25", m.MaxDrawdown)
	}
	if m.DrawdownDuration != 3 {
		t.Errorf("drawdown duration = %d, want 3", m.DrawdownDuration)
	}
}

func TestCompute_TradeStats(t *testing.T) {
	trades := []models.ClosedTrade{
		tradeOf(100, 1),
		tradeOf(200, 1),
		tradeOf(-50, 1),
		tradeOf(300, 1),
		tradeOf(-100, 1),
	}
	m := Compute(curveOf(100000, 100450), trades)

	if m.TotalTrades != 5 || m.WinningTrades != 3 || m.LosingTrades != 2 {
		t.Fatalf("trade counts wrong: %+v", m)
	}
	if math.Abs(m.WinRate-0.6) > 1e-9 {
		t.Errorf("win rate = %f, want 0.6", m.WinRate)
	}
	if math.Abs(m.ProfitFactor-4.0) > 1e-9 {
		t.Errorf("profit factor = %f, want 4.0", m.ProfitFactor)
	}
	if math.Abs(m.AvgWin-200) > 1e-9 || math.Abs(m.AvgLoss-75) > 1e-9 {
		t.Errorf("avg win/loss = %f/%f, want 200/75", m.AvgWin, m.AvgLoss)
	}
	// expectancy = 0.6*200 - 0.4*75 = 90
	if math.Abs(m.Expectancy-90) > 1e-9 {
		t.Errorf("expectancy = %f, want 90", m.Expectancy)
	}
	if m.TotalCommissions != 5 {
		t.Errorf("commissions = %f, want 5", m.TotalCommissions)
	}
}

func TestCompute_Streaks(t *testing.T) {
	trades := []models.ClosedTrade{
		tradeOf(10, 0), tradeOf(10, 0), tradeOf(10, 0),
		tradeOf(-10, 0), tradeOf(-10, 0),
		tradeOf(10, 0),
	}
	m := Compute(nil, trades)
	if m.MaxWinStreak != 3 {
		t.Errorf("max win streak = %d, want 3", m.MaxWinStreak)
	}
	if m.MaxLossStreak != 2 {
		t.Errorf("max loss streak = %d, want 2", m.MaxLossStreak)
	}
}

func TestCompute_AllLosingTrades(t *testing.T) {
	// Gross profit zero: profit factor must be 0, not NaN.
	m := Compute(nil, []models.ClosedTrade{tradeOf(-10, 0), tradeOf(-20, 0)})
	if m.ProfitFactor != 0 {
		t.Errorf("profit factor = %f, want 0", m.ProfitFactor)
	}
	if m.WinRate != 0 {
		t.Errorf("win rate = %f, want 0", m.WinRate)
	}
}

// Property: Compute is pure. Metrics are finite for any curve, drawdown is
// in [0, 1], and recomputing on the same inputs gives identical output.
func TestProperty_MetricsFiniteAndIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("metrics are finite and stable", prop.ForAll(
		func(values []float64) bool {
			curve := curveOf(values...)
			m1 := Compute(curve, nil)
			m2 := Compute(curve, nil)

			for _, v := range []float64{
				m1.TotalReturn, m1.AnnualizedReturn, m1.Volatility,
				m1.SharpeRatio, m1.SortinoRatio, m1.MaxDrawdown, m1.CalmarRatio,
			} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return false
				}
			}
			if m1.MaxDrawdown < 0 || m1.MaxDrawdown > 1 {
				return false
			}
			return m1 == m2
		},
		gen.SliceOfN(50, gen.Float64Range(1000, 200000)),
	))

	properties.TestingRun(t)
}
