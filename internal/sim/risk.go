package sim

import (
	"math"

	"signal-trader/internal/config"
	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

// RiskManager vets proposed entries against the configured risk rules.
// It is consulted after confidence and sizing but before any ledger mutation,
// so a rejection leaves the ledger untouched.
type RiskManager struct {
	cfg config.RiskConfig
	sim config.SimulationConfig

	// returnsBySymbol holds recent return series for the correlation check.
	// Empty map disables the check regardless of config.
	returnsBySymbol map[string][]float64
}

// NewRiskManager creates a risk manager.
func NewRiskManager(riskCfg config.RiskConfig, simCfg config.SimulationConfig) *RiskManager {
	return &RiskManager{
		cfg:             riskCfg,
		sim:             simCfg,
		returnsBySymbol: make(map[string][]float64),
	}
}

// SetReturns installs return series used for the correlation rule.
func (rm *RiskManager) SetReturns(returns map[string][]float64) {
	rm.returnsBySymbol = returns
}

// CanOpenPosition checks every entry rule for a proposed position.
// proposedValue is the resulting position's pre-friction notional. Order of
// checks is fixed: position count, position size, correlation. A symbol
// already held does not count against the position limit, so increases to an
// existing position pass the count rule.
func (rm *RiskManager) CanOpenPosition(symbol string, proposedValue, totalEquity float64, open map[string]*models.Position) error {
	count := len(open)
	if _, held := open[symbol]; held {
		count--
	}
	if count >= rm.cfg.MaxConcurrentPositions {
		return errors.NewRiskError("max_concurrent_positions",
			float64(count), float64(rm.cfg.MaxConcurrentPositions),
			"open position count at limit")
	}

	if totalEquity > 0 && proposedValue/totalEquity > rm.sim.MaxPositionSize+1e-9 {
		return errors.NewRiskError("max_position_size",
			proposedValue/totalEquity, rm.sim.MaxPositionSize,
			"proposed position exceeds equity fraction cap")
	}

	if rm.cfg.MaxCorrelation > 0 {
		if err := rm.checkCorrelation(symbol, open); err != nil {
			return err
		}
	}

	return nil
}

// checkCorrelation rejects the entry when the candidate's mean absolute
// correlation against currently held symbols exceeds the cap.
func (rm *RiskManager) checkCorrelation(symbol string, open map[string]*models.Position) error {
	candidate, ok := rm.returnsBySymbol[symbol]
	if !ok || len(candidate) < 2 || len(open) == 0 {
		return nil
	}

	var sum float64
	var n int
	for held := range open {
		series, ok := rm.returnsBySymbol[held]
		if !ok {
			continue
		}
		sum += math.Abs(Correlation(candidate, series))
		n++
	}
	if n == 0 {
		return nil
	}

	mean := sum / float64(n)
	if mean > rm.cfg.MaxCorrelation {
		return errors.NewRiskError("max_correlation", mean, rm.cfg.MaxCorrelation,
			"candidate too correlated with held positions")
	}
	return nil
}

// Correlation returns the Pearson correlation of two return series, using
// the overlapping suffix of equal length. Degenerate series yield 0.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
