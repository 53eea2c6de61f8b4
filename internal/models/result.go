package models

import "time"

// PerformanceMetrics holds return/risk metrics computed from an equity curve
// and closed-trade list. All percentages are plain floats so callers can
// render or re-aggregate without re-parsing. Ratios with a zero denominator
// are reported as 0.0, never NaN or Inf.
type PerformanceMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	DrawdownDuration int     `json:"drawdown_duration"` // bars below the prior peak
	CalmarRatio      float64 `json:"calmar_ratio"`

	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	Expectancy       float64 `json:"expectancy"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	MaxWinStreak     int     `json:"max_win_streak"`
	MaxLossStreak    int     `json:"max_loss_streak"`
	TotalCommissions float64 `json:"total_commissions"`
}

// BacktestResult is the artifact of a single-symbol backtest run.
type BacktestResult struct {
	RunID              string             `json:"run_id"`
	Symbol             string             `json:"symbol"`
	Strategy           string             `json:"strategy"`
	StartDate          time.Time          `json:"start_date"`
	EndDate            time.Time          `json:"end_date"`
	InitialCapital     float64            `json:"initial_capital"`
	FinalEquity        float64            `json:"final_equity"`
	Bars               int                `json:"bars"`
	SkippedPredictions int                `json:"skipped_predictions"`
	EquityCurve        []EquitySnapshot   `json:"equity_curve"`
	Trades             []ClosedTrade      `json:"closed_trades"`
	Metrics            PerformanceMetrics `json:"metrics"`
}

// SymbolContribution reports one symbol's share of a portfolio run.
type SymbolContribution struct {
	Symbol        string  `json:"symbol"`
	Trades        int     `json:"trades"`
	RealizedPnL   float64 `json:"realized_pnl"`
	ReturnPct     float64 `json:"return_pct"`
	FinalWeight   float64 `json:"final_weight"`
	SkippedReason string  `json:"skipped_reason,omitempty"` // set when the symbol was dropped
}

// PortfolioBacktestResult is the artifact of a multi-symbol portfolio run.
type PortfolioBacktestResult struct {
	RunID                string                        `json:"run_id"`
	Symbols              []string                      `json:"symbols"`
	AllocationStrategy   string                        `json:"allocation_strategy"`
	StartDate            time.Time                     `json:"start_date"`
	EndDate              time.Time                     `json:"end_date"`
	InitialCapital       float64                       `json:"initial_capital"`
	FinalEquity          float64                       `json:"final_equity"`
	Rebalances           int                           `json:"rebalances"`
	SkippedPredictions   int                           `json:"skipped_predictions"`
	EquityCurve          []EquitySnapshot              `json:"equity_curve"`
	Trades               []ClosedTrade                 `json:"closed_trades"`
	Metrics              PerformanceMetrics            `json:"metrics"`
	Contributions        map[string]SymbolContribution `json:"per_symbol"`
	CorrelationMatrix    map[string]map[string]float64 `json:"correlation_matrix"`
	DiversificationScore float64                       `json:"diversification_score"`
}
