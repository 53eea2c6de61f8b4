// Package portfolio manages multi-symbol capital allocation: target weight
// computation, rebalance triggering, and diversification reporting.
package portfolio

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"signal-trader/internal/config"
	"signal-trader/internal/logging"
)

// RebalanceTrigger names why a rebalance fired.
type RebalanceTrigger string

const (
	TriggerTime  RebalanceTrigger = "time"
	TriggerDrift RebalanceTrigger = "drift"
)

// Manager decides when and how to rebalance a multi-symbol portfolio.
// It holds no positions itself; the execution ledger does.
type Manager struct {
	cfg    config.PortfolioConfig
	logger zerolog.Logger

	lastRebalance time.Time
	rebalances    int
}

// NewManager creates a portfolio manager.
func NewManager(cfg config.PortfolioConfig, logger zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

// Rebalances reports how many rebalances have fired this run.
func (m *Manager) Rebalances() int { return m.rebalances }

// Targets computes target weights for the configured allocation strategy.
func (m *Manager) Targets(stats map[string]SymbolStats) (map[string]float64, error) {
	return ComputeTargets(m.cfg.AllocationStrategy, stats, m.cfg.KellyCap)
}

// ShouldRebalance checks the time trigger and the drift trigger against the
// current and target weights. Time wins when both fire.
func (m *Manager) ShouldRebalance(ts time.Time, current, target map[string]float64) (bool, RebalanceTrigger) {
	if m.lastRebalance.IsZero() {
		return true, TriggerTime
	}
	if m.intervalElapsed(ts) {
		return true, TriggerTime
	}
	if m.maxDrift(current, target) > m.cfg.DriftTolerance {
		return true, TriggerDrift
	}
	return false, ""
}

// MarkRebalanced records that a rebalance executed at ts.
func (m *Manager) MarkRebalanced(ts time.Time, trigger RebalanceTrigger, orders int, target map[string]float64) {
	m.lastRebalance = ts
	m.rebalances++
	logging.LogRebalance(m.logger, string(trigger), orders, target)
}

func (m *Manager) intervalElapsed(ts time.Time) bool {
	elapsed := ts.Sub(m.lastRebalance)
	switch strings.ToLower(m.cfg.RebalanceInterval) {
	case "daily":
		return elapsed >= 24*time.Hour
	case "weekly":
		return elapsed >= 7*24*time.Hour
	case "monthly":
		return elapsed >= 30*24*time.Hour
	default:
		return elapsed >= 7*24*time.Hour
	}
}

// maxDrift returns the largest absolute weight deviation across symbols.
func (m *Manager) maxDrift(current, target map[string]float64) float64 {
	var worst float64
	seen := make(map[string]bool, len(target))
	for sym, tw := range target {
		seen[sym] = true
		if d := math.Abs(current[sym] - tw); d > worst {
			worst = d
		}
	}
	for sym, cw := range current {
		if seen[sym] {
			continue
		}
		if d := math.Abs(cw); d > worst {
			worst = d
		}
	}
	return worst
}

// TargetShares converts target weights into whole-share targets at the given
// quotes. Symbols with a missing or non-positive quote get a zero target.
func TargetShares(target map[string]float64, equity float64, quotes map[string]float64) map[string]int {
	out := make(map[string]int, len(target))
	for sym, w := range target {
		quote := quotes[sym]
		if quote <= 0 || w <= 0 {
			out[sym] = 0
			continue
		}
		out[sym] = int(math.Floor(equity * w / quote))
	}
	return out
}

// CurrentWeights values positions at the given quotes and expresses each as
// a fraction of total equity.
func CurrentWeights(shares map[string]int, equity float64, quotes map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(shares))
	if equity <= 0 {
		return out
	}
	for sym, n := range shares {
		out[sym] = quotes[sym] * float64(n) / equity
	}
	return out
}
