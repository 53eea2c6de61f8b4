// Package analytics computes performance metrics from an equity curve and a
// closed-trade list. All functions are pure; any ratio whose denominator is
// zero is reported as 0.0 rather than NaN or Inf.
package analytics

import (
	"math"

	"signal-trader/internal/models"
)

// tradingDaysPerYear is the annualization base for daily bars.
const tradingDaysPerYear = 252

// Compute derives the full metric set for a run.
func Compute(curve []models.EquitySnapshot, trades []models.ClosedTrade) models.PerformanceMetrics {
	var m models.PerformanceMetrics

	m.TotalReturn = totalReturn(curve)
	m.AnnualizedReturn = annualizedReturn(curve)

	returns := periodReturns(curve)
	m.Volatility = stddev(returns) * math.Sqrt(tradingDaysPerYear)
	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)
	m.MaxDrawdown, m.DrawdownDuration = maxDrawdown(curve)
	m.CalmarRatio = safeDiv(m.AnnualizedReturn, m.MaxDrawdown)

	fillTradeStats(&m, trades)

	return m
}

func totalReturn(curve []models.EquitySnapshot) float64 {
	if len(curve) < 2 {
		return 0
	}
	initial := curve[0].TotalEquity
	final := curve[len(curve)-1].TotalEquity
	return safeDiv(final-initial, initial)
}

func annualizedReturn(curve []models.EquitySnapshot) float64 {
	if len(curve) < 2 {
		return 0
	}
	total := totalReturn(curve)
	periods := float64(len(curve) - 1)
	if total <= -1 {
		return -1
	}
	return math.Pow(1+total, tradingDaysPerYear/periods) - 1
}

// periodReturns converts the equity curve into per-bar simple returns.
func periodReturns(curve []models.EquitySnapshot) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalEquity
		out = append(out, safeDiv(curve[i].TotalEquity-prev, prev))
	}
	return out
}

func sharpe(returns []float64) float64 {
	sd := stddev(returns)
	return safeDiv(mean(returns), sd) * math.Sqrt(tradingDaysPerYear)
}

// sortino penalizes only downside deviation.
func sortino(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sumSq float64
	var n int
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	downside := math.Sqrt(sumSq / float64(len(returns)))
	return safeDiv(mean(returns), downside) * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown returns the deepest peak-to-trough equity decline as a positive
// fraction, and the longest stretch of consecutive bars spent below a prior
// peak.
func maxDrawdown(curve []models.EquitySnapshot) (float64, int) {
	if len(curve) == 0 {
		return 0, 0
	}

	peak := curve[0].TotalEquity
	var maxDD float64
	var duration, maxDuration int

	for _, snap := range curve {
		if snap.TotalEquity >= peak {
			peak = snap.TotalEquity
			duration = 0
			continue
		}
		duration++
		if duration > maxDuration {
			maxDuration = duration
		}
		dd := safeDiv(peak-snap.TotalEquity, peak)
		if dd > maxDD {
			maxDD = dd
		}
	}

	return maxDD, maxDuration
}

func fillTradeStats(m *models.PerformanceMetrics, trades []models.ClosedTrade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var grossProfit, grossLoss, sumWin, sumLoss float64
	var winStreak, lossStreak int

	for _, t := range trades {
		m.TotalCommissions += t.CommissionPaid
		if t.PnL > 0 {
			m.WinningTrades++
			grossProfit += t.PnL
			sumWin += t.PnL
			winStreak++
			lossStreak = 0
		} else {
			m.LosingTrades++
			grossLoss += -t.PnL
			sumLoss += -t.PnL
			lossStreak++
			winStreak = 0
		}
		if winStreak > m.MaxWinStreak {
			m.MaxWinStreak = winStreak
		}
		if lossStreak > m.MaxLossStreak {
			m.MaxLossStreak = lossStreak
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.ProfitFactor = safeDiv(grossProfit, grossLoss)
	m.AvgWin = safeDiv(sumWin, float64(m.WinningTrades))
	m.AvgLoss = safeDiv(sumLoss, float64(m.LosingTrades))
	m.Expectancy = m.WinRate*m.AvgWin - (1-m.WinRate)*m.AvgLoss
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
