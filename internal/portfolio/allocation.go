package portfolio

import (
	"math"
	"sort"
	"strings"

	"signal-trader/internal/errors"
	"signal-trader/internal/sim"
)

// SymbolStats carries the per-symbol inputs an allocation strategy may use.
// Returns are recent per-bar simple returns; Confidence is the latest signal
// confidence; the trade counters summarize closed trades so far this run.
type SymbolStats struct {
	Returns    []float64
	Confidence float64
	Wins       int
	Losses     int
	AvgWin     float64
	AvgLoss    float64
}

// minKellyTrades is the trade history needed before Kelly sizing is trusted.
const minKellyTrades = 5

// ComputeTargets returns target portfolio weights by strategy name. Weights
// are non-negative and sum to at most 1; the remainder stays in cash.
func ComputeTargets(strategy string, stats map[string]SymbolStats, kellyCap float64) (map[string]float64, error) {
	symbols := make([]string, 0, len(stats))
	for sym := range stats {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	switch strings.ToLower(strategy) {
	case "equal_weight":
		return equalWeight(symbols), nil
	case "risk_parity":
		return riskParity(symbols, stats), nil
	case "confidence_weighted":
		return confidenceWeighted(symbols, stats), nil
	case "kelly":
		return kelly(symbols, stats, kellyCap), nil
	default:
		return nil, errors.NewValidationError("allocation_strategy", strategy, "unknown strategy")
	}
}

func equalWeight(symbols []string) map[string]float64 {
	w := 1.0 / float64(len(symbols))
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		out[sym] = w
	}
	return out
}

// riskParity weights each symbol proportionally to the inverse of its return
// volatility. Symbols with degenerate history fall back to the mean inverse
// vol of the rest.
func riskParity(symbols []string, stats map[string]SymbolStats) map[string]float64 {
	inv := make(map[string]float64, len(symbols))
	var sumKnown float64
	var nKnown int
	for _, sym := range symbols {
		sd := stddev(stats[sym].Returns)
		if sd > 0 {
			inv[sym] = 1 / sd
			sumKnown += inv[sym]
			nKnown++
		}
	}

	fallback := 1.0
	if nKnown > 0 {
		fallback = sumKnown / float64(nKnown)
	}

	var total float64
	for _, sym := range symbols {
		if _, ok := inv[sym]; !ok {
			inv[sym] = fallback
		}
		total += inv[sym]
	}

	return normalize(symbols, inv, total)
}

// confidenceWeighted weights symbols by their latest signal confidence.
// All-zero confidence degrades to equal weight.
func confidenceWeighted(symbols []string, stats map[string]SymbolStats) map[string]float64 {
	raw := make(map[string]float64, len(symbols))
	var total float64
	for _, sym := range symbols {
		c := stats[sym].Confidence
		if c < 0 {
			c = 0
		}
		raw[sym] = c
		total += c
	}
	if total == 0 {
		return equalWeight(symbols)
	}
	return normalize(symbols, raw, total)
}

// kelly sizes each symbol by the Kelly criterion f* = (p*b - q) / b using its
// realized trade history, clipped to [0, cap], then renormalized. Symbols
// without enough history use an equal-weight share instead.
func kelly(symbols []string, stats map[string]SymbolStats, capFrac float64) map[string]float64 {
	if capFrac <= 0 {
		capFrac = 0.20
	}
	equal := 1.0 / float64(len(symbols))

	raw := make(map[string]float64, len(symbols))
	var total float64
	for _, sym := range symbols {
		st := stats[sym]
		n := st.Wins + st.Losses
		f := equal
		if n >= minKellyTrades && st.AvgLoss > 0 {
			p := float64(st.Wins) / float64(n)
			b := st.AvgWin / st.AvgLoss
			if b > 0 {
				f = (p*b - (1 - p)) / b
			} else {
				f = 0
			}
		}
		f = math.Max(0, math.Min(f, capFrac))
		raw[sym] = f
		total += f
	}
	if total == 0 {
		// Every edge is negative; stay in cash.
		out := make(map[string]float64, len(symbols))
		for _, sym := range symbols {
			out[sym] = 0
		}
		return out
	}
	if total <= 1 {
		// Fractions are already valid cash-bounded weights.
		return raw
	}
	return normalize(symbols, raw, total)
}

func normalize(symbols []string, raw map[string]float64, total float64) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		out[sym] = raw[sym] / total
	}
	return out
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mu := sum / float64(len(xs))
	var sumSq float64
	for _, x := range xs {
		d := x - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

// CorrelationMatrix computes the pairwise Pearson correlation of the given
// return series. The matrix is symmetric with a unit diagonal.
func CorrelationMatrix(returns map[string][]float64) map[string]map[string]float64 {
	symbols := make([]string, 0, len(returns))
	for sym := range returns {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	matrix := make(map[string]map[string]float64, len(symbols))
	for _, a := range symbols {
		matrix[a] = make(map[string]float64, len(symbols))
		for _, b := range symbols {
			if a == b {
				matrix[a][b] = 1
				continue
			}
			matrix[a][b] = sim.Correlation(returns[a], returns[b])
		}
	}
	return matrix
}

// DiversificationScore maps the mean absolute off-diagonal correlation to a
// 0..100 score, higher meaning better diversified. Fewer than two symbols
// scores 100.
func DiversificationScore(matrix map[string]map[string]float64) float64 {
	var sum float64
	var n int
	for a, row := range matrix {
		for b, rho := range row {
			if a == b {
				continue
			}
			sum += math.Abs(rho)
			n++
		}
	}
	if n == 0 {
		return 100
	}
	return (1 - sum/float64(n)) * 100
}
