package optimize

import (
	"math/rand"

	"signal-trader/internal/predict"
)

// ParamRange is one tunable dimension of the search space.
type ParamRange struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Space is an ordered set of parameter ranges.
type Space []ParamRange

// Combinations returns the size of the full cartesian product.
func (s Space) Combinations() int {
	if len(s) == 0 {
		return 0
	}
	total := 1
	for _, r := range s {
		if len(r.Values) == 0 {
			return 0
		}
		total *= len(r.Values)
	}
	return total
}

// Grid enumerates the full cartesian product in a stable order.
func (s Space) Grid() []predict.Params {
	total := s.Combinations()
	if total == 0 {
		return nil
	}

	out := make([]predict.Params, 0, total)
	indices := make([]int, len(s))
	for {
		p := make(predict.Params, len(s))
		for i, r := range s {
			p[r.Name] = r.Values[indices[i]]
		}
		out = append(out, p)

		// Odometer increment over the index vector.
		i := len(indices) - 1
		for i >= 0 {
			indices[i]++
			if indices[i] < len(s[i].Values) {
				break
			}
			indices[i] = 0
			i--
		}
		if i < 0 {
			return out
		}
	}
}

// Random samples n distinct combinations without replacement via a seeded
// shuffle of the full grid, deterministic for a given seed. Asking for more
// than the grid holds returns the whole grid.
func (s Space) Random(n int, seed int64) []predict.Params {
	combos := s.Grid()
	if n <= 0 || len(combos) == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(combos), func(i, j int) {
		combos[i], combos[j] = combos[j], combos[i]
	})
	if n < len(combos) {
		combos = combos[:n]
	}
	return combos
}

// DefaultSpace returns a sensible search space for a built-in strategy.
func DefaultSpace(strategy string) Space {
	switch strategy {
	case "rsi_reversal":
		return Space{
			{Name: "period", Values: []float64{7, 10, 14, 21}},
			{Name: "oversold", Values: []float64{20, 25, 30}},
			{Name: "overbought", Values: []float64{70, 75, 80}},
		}
	case "macd":
		return Space{
			{Name: "fast_period", Values: []float64{8, 12, 16}},
			{Name: "slow_period", Values: []float64{21, 26, 30}},
			{Name: "signal_period", Values: []float64{7, 9, 11}},
		}
	default:
		return Space{
			{Name: "short_period", Values: []float64{5, 10, 15, 20}},
			{Name: "long_period", Values: []float64{20, 30, 50, 100}},
		}
	}
}
