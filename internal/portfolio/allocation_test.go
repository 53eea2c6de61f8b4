package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"signal-trader/internal/config"
)

func TestComputeTargets_EqualWeight(t *testing.T) {
	stats := map[string]SymbolStats{"AAA": {}, "BBB": {}, "CCC": {}, "DDD": {}}
	weights, err := ComputeTargets("equal_weight", stats, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	for sym, w := range weights {
		if math.Abs(w-0.25) > 1e-9 {
			t.Errorf("%s weight = %f, want 0.25", sym, w)
		}
	}
}

func TestComputeTargets_RiskParityFavorsLowVol(t *testing.T) {
	calm := []float64{0.001, -0.001, 0.002, -0.002, 0.001, -0.001}
	wild := []float64{0.05, -0.06, 0.08, -0.07, 0.06, -0.05}

	weights, err := ComputeTargets("risk_parity", map[string]SymbolStats{
		"CALM": {Returns: calm},
		"WILD": {Returns: wild},
	}, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if weights["CALM"] <= weights["WILD"] {
		t.Errorf("low-vol symbol should get more weight: calm=%f wild=%f",
			weights["CALM"], weights["WILD"])
	}
	if math.Abs(weights["CALM"]+weights["WILD"]-1) > 1e-9 {
		t.Errorf("weights should sum to 1")
	}
}

func TestComputeTargets_ConfidenceWeighted(t *testing.T) {
	weights, err := ComputeTargets("confidence_weighted", map[string]SymbolStats{
		"HI": {Confidence: 0.9},
		"LO": {Confidence: 0.3},
	}, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(weights["HI"]-0.75) > 1e-9 || math.Abs(weights["LO"]-0.25) > 1e-9 {
		t.Errorf("weights = %v, want HI=0.75 LO=0.25", weights)
	}
}

func TestComputeTargets_ConfidenceAllZeroFallsBackToEqual(t *testing.T) {
	weights, err := ComputeTargets("confidence_weighted", map[string]SymbolStats{
		"AAA": {}, "BBB": {},
	}, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(weights["AAA"]-0.5) > 1e-9 {
		t.Errorf("zero confidence should degrade to equal weight, got %v", weights)
	}
}

func TestComputeTargets_KellyClipsAndUsesHistory(t *testing.T) {
	// 60% winners, 2:1 payoff: f* = (0.6*2 - 0.4) / 2 = 0.4, clipped to 0.2.
	strong := SymbolStats{Wins: 6, Losses: 4, AvgWin: 200, AvgLoss: 100}
	// Uniform loser: f* negative, clipped to 0.
	loser := SymbolStats{Wins: 1, Losses: 9, AvgWin: 50, AvgLoss: 100}

	weights, err := ComputeTargets("kelly", map[string]SymbolStats{
		"STRONG": strong,
		"LOSER":  loser,
	}, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(weights["STRONG"]-0.2) > 1e-9 {
		t.Errorf("STRONG weight = %f, want clipped 0.2", weights["STRONG"])
	}
	if weights["LOSER"] != 0 {
		t.Errorf("LOSER weight = %f, want 0", weights["LOSER"])
	}
}

func TestComputeTargets_UnknownStrategy(t *testing.T) {
	if _, err := ComputeTargets("martingale", map[string]SymbolStats{"A": {}}, 0.2); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestDiversificationScore(t *testing.T) {
	perfect := map[string]map[string]float64{
		"A": {"A": 1, "B": 0},
		"B": {"A": 0, "B": 1},
	}
	if got := DiversificationScore(perfect); math.Abs(got-100) > 1e-9 {
		t.Errorf("uncorrelated pair scores %f, want 100", got)
	}

	identical := map[string]map[string]float64{
		"A": {"A": 1, "B": 1},
		"B": {"A": 1, "B": 1},
	}
	if got := DiversificationScore(identical); math.Abs(got) > 1e-9 {
		t.Errorf("perfectly correlated pair scores %f, want 0", got)
	}

	if got := DiversificationScore(map[string]map[string]float64{"A": {"A": 1}}); got != 100 {
		t.Errorf("single symbol scores %f, want 100", got)
	}
}

func TestManager_RebalanceTriggers(t *testing.T) {
	cfg := config.Default().Portfolio
	cfg.RebalanceInterval = "weekly"
	cfg.DriftTolerance = 0.05
	m := NewManager(cfg, zerolog.Nop())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	target := map[string]float64{"AAA": 0.5, "BBB": 0.5}

	// First call always rebalances.
	if fire, trigger := m.ShouldRebalance(start, target, target); !fire || trigger != TriggerTime {
		t.Fatal("first check should fire on time trigger")
	}
	m.MarkRebalanced(start, TriggerTime, 2, target)

	// Within the interval and tolerance: no trigger.
	inTol := map[string]float64{"AAA": 0.52, "BBB": 0.48}
	if fire, _ := m.ShouldRebalance(start.AddDate(0, 0, 2), inTol, target); fire {
		t.Error("should not fire within interval and tolerance")
	}

	// Drift past tolerance fires early.
	drifted := map[string]float64{"AAA": 0.60, "BBB": 0.40}
	if fire, trigger := m.ShouldRebalance(start.AddDate(0, 0, 2), drifted, target); !fire || trigger != TriggerDrift {
		t.Error("drift past tolerance should fire")
	}

	// Interval elapse fires even without drift.
	if fire, trigger := m.ShouldRebalance(start.AddDate(0, 0, 8), target, target); !fire || trigger != TriggerTime {
		t.Error("elapsed interval should fire")
	}
}

func TestTargetShares(t *testing.T) {
	shares := TargetShares(
		map[string]float64{"AAA": 0.5, "BBB": 0.3, "NOQUOTE": 0.2},
		100000,
		map[string]float64{"AAA": 250, "BBB": 90},
	)
	if shares["AAA"] != 200 {
		t.Errorf("AAA shares = %d, want 200", shares["AAA"])
	}
	if shares["BBB"] != 333 {
		t.Errorf("BBB shares = %d, want 333", shares["BBB"])
	}
	if shares["NOQUOTE"] != 0 {
		t.Errorf("missing quote should target 0 shares")
	}
}

// Property: any allocation strategy yields weights that are non-negative,
// finite, and sum to at most 1 (plus rounding slack).
func TestProperty_WeightsAlwaysValid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	strategies := []string{"equal_weight", "risk_parity", "confidence_weighted", "kelly"}

	properties.Property("weights are a valid sub-allocation", prop.ForAll(
		func(strategyIdx int, confidences []float64, returns []float64, wins, losses int) bool {
			stats := make(map[string]SymbolStats)
			symbols := []string{"AAA", "BBB", "CCC"}
			for i, sym := range symbols {
				st := SymbolStats{
					Confidence: confidences[i],
					Wins:       wins,
					Losses:     losses,
					AvgWin:     150,
					AvgLoss:    100,
				}
				lo := i * 10
				st.Returns = returns[lo : lo+10]
				stats[sym] = st
			}

			weights, err := ComputeTargets(strategies[strategyIdx], stats, 0.2)
			if err != nil {
				return false
			}

			var sum float64
			for _, w := range weights {
				if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
					return false
				}
				sum += w
			}
			return sum <= 1+1e-9
		},
		gen.IntRange(0, 3),
		gen.SliceOfN(3, gen.Float64Range(0, 1)),
		gen.SliceOfN(30, gen.Float64Range(-0.1, 0.1)),
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
