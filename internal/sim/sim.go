// Package sim provides the simulated execution ledger. A Simulator owns the
// cash balance, open positions, trade history, and equity curve for one run,
// and turns signals into fills under the configured friction and risk model.
package sim

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signal-trader/internal/config"
	"signal-trader/internal/errors"
	"signal-trader/internal/logging"
	"signal-trader/internal/models"
)

// Simulator is a single-run execution ledger. It is not safe for concurrent
// use; each run owns its own instance.
type Simulator struct {
	cfg     config.SimulationConfig
	risk    *RiskManager
	breaker *DailyCircuitBreaker
	logger  zerolog.Logger

	cash            float64
	positions       map[string]*models.Position
	entryCommission map[string]float64
	lastPrice       map[string]float64
	trades          []models.ClosedTrade
	equityCurve     []models.EquitySnapshot
}

// NewSimulator creates a ledger seeded with the configured initial capital.
func NewSimulator(simCfg config.SimulationConfig, riskCfg config.RiskConfig, logger zerolog.Logger) *Simulator {
	return &Simulator{
		cfg:             simCfg,
		risk:            NewRiskManager(riskCfg, simCfg),
		breaker:         NewDailyCircuitBreaker(riskCfg.DailyLossLimitPct),
		logger:          logger,
		cash:            simCfg.InitialCapital,
		positions:       make(map[string]*models.Position),
		entryCommission: make(map[string]float64),
		lastPrice:       make(map[string]float64),
	}
}

// Risk exposes the risk manager so callers can install correlation inputs.
func (s *Simulator) Risk() *RiskManager { return s.risk }

// Cash returns the current cash balance.
func (s *Simulator) Cash() float64 { return s.cash }

// Position returns the open position for a symbol, or nil.
func (s *Simulator) Position(symbol string) *models.Position {
	p, ok := s.positions[symbol]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Positions returns a copy of all open positions.
func (s *Simulator) Positions() map[string]*models.Position {
	out := make(map[string]*models.Position, len(s.positions))
	for sym, p := range s.positions {
		cp := *p
		out[sym] = &cp
	}
	return out
}

// Trades returns the closed-trade history.
func (s *Simulator) Trades() []models.ClosedTrade {
	out := make([]models.ClosedTrade, len(s.trades))
	copy(out, s.trades)
	return out
}

// EquityCurve returns the recorded equity snapshots.
func (s *Simulator) EquityCurve() []models.EquitySnapshot {
	out := make([]models.EquitySnapshot, len(s.equityCurve))
	copy(out, s.equityCurve)
	return out
}

// Equity returns cash plus open positions valued at last seen prices.
// Positions with no observed price fall back to their entry price.
func (s *Simulator) Equity() float64 {
	return s.cash + s.positionsValue()
}

func (s *Simulator) positionsValue() float64 {
	var total float64
	for sym, p := range s.positions {
		price, ok := s.lastPrice[sym]
		if !ok {
			price = p.EntryPrice
		}
		total += price * float64(p.Shares)
	}
	return total
}

// ObservePrice records the latest quote for a symbol. Valuation, sizing, and
// the circuit breaker all key off observed prices.
func (s *Simulator) ObservePrice(symbol string, price float64) {
	s.lastPrice[symbol] = price
}

// MarkToMarket appends an equity snapshot at ts and feeds the circuit
// breaker. Call once per simulated bar after all prices are observed.
func (s *Simulator) MarkToMarket(ts time.Time) models.EquitySnapshot {
	snap := models.EquitySnapshot{
		Timestamp:      ts,
		Cash:           s.cash,
		PositionsValue: s.positionsValue(),
	}
	snap.TotalEquity = snap.Cash + snap.PositionsValue
	s.equityCurve = append(s.equityCurve, snap)
	s.breaker.Observe(ts, snap.TotalEquity)
	return snap
}

// CircuitTripped reports whether the daily loss breaker is blocking entries.
func (s *Simulator) CircuitTripped() bool { return s.breaker.Tripped() }

// ExecuteSignal processes one signal against the bar it was generated on.
// Non-executed outcomes are recoverable and leave the ledger untouched.
func (s *Simulator) ExecuteSignal(signal models.Signal, bar models.Bar) models.TradeResult {
	s.ObservePrice(signal.Symbol, bar.Close)

	switch signal.Action {
	case models.ActionBuy:
		return s.executeBuy(signal, bar)
	case models.ActionSell:
		return s.executeSell(signal, bar)
	default:
		return models.TradeResult{
			Symbol: signal.Symbol,
			Action: signal.Action,
			Status: models.TradeSkipped,
			Reason: "hold",
		}
	}
}

func (s *Simulator) executeBuy(signal models.Signal, bar models.Bar) models.TradeResult {
	result := models.TradeResult{Symbol: signal.Symbol, Action: models.ActionBuy}

	if s.breaker.Tripped() {
		result.Status = models.TradeRiskLimitExceeded
		result.Reason = errors.ErrCircuitBreakerActive.Error()
		logging.LogSkippedOrder(s.logger, signal.Symbol, signal.Action, result.Status, result.Reason)
		return result
	}
	if signal.Confidence < s.cfg.ConfidenceThreshold {
		result.Status = models.TradeSkipped
		result.Reason = "confidence below threshold"
		return result
	}
	if _, open := s.positions[signal.Symbol]; open {
		result.Status = models.TradeSkipped
		result.Reason = "position already open"
		return result
	}

	equity := s.Equity()
	desired := equity * s.cfg.BaseFraction * signal.Confidence
	if limit := equity * s.cfg.MaxPositionSize; desired > limit {
		desired = limit
	}

	shares := int(math.Floor(desired / bar.Close))
	if shares <= 0 {
		result.Status = models.TradeInsufficientCapital
		result.Reason = errors.NewCapitalError(signal.Symbol, bar.Close, desired).Error()
		logging.LogSkippedOrder(s.logger, signal.Symbol, signal.Action, result.Status, result.Reason)
		return result
	}

	execPrice := s.executionPrice(bar.Close, shares, true)
	cost := execPrice * float64(shares)
	commission := cost * s.cfg.CommissionRate

	// Shrink to what cash actually covers at the frictional price.
	for shares > 0 && cost+commission > s.cash {
		shares--
		execPrice = s.executionPrice(bar.Close, shares, true)
		cost = execPrice * float64(shares)
		commission = cost * s.cfg.CommissionRate
	}
	if shares <= 0 {
		result.Status = models.TradeInsufficientCapital
		result.Reason = errors.NewCapitalError(signal.Symbol, bar.Close, s.cash).Error()
		logging.LogSkippedOrder(s.logger, signal.Symbol, signal.Action, result.Status, result.Reason)
		return result
	}

	// Risk rules see the pre-friction notional; friction costs are an
	// execution detail, not position size.
	if err := s.risk.CanOpenPosition(signal.Symbol, float64(shares)*bar.Close, equity, s.positions); err != nil {
		result.Status = models.TradeRiskLimitExceeded
		result.Reason = err.Error()
		logging.LogSkippedOrder(s.logger, signal.Symbol, signal.Action, result.Status, result.Reason)
		return result
	}

	s.cash -= cost + commission
	s.positions[signal.Symbol] = &models.Position{
		Symbol:            signal.Symbol,
		Shares:            shares,
		EntryPrice:        execPrice,
		EntryTime:         bar.Timestamp,
		ConfidenceAtEntry: signal.Confidence,
	}
	s.entryCommission[signal.Symbol] = commission

	result.Status = models.TradeExecuted
	result.Order = s.filledOrder(signal.Symbol, models.ActionBuy, shares, bar.Timestamp)
	logging.LogFill(s.logger, signal.Symbol, models.ActionBuy, shares, execPrice)
	return result
}

func (s *Simulator) executeSell(signal models.Signal, bar models.Bar) models.TradeResult {
	result := models.TradeResult{Symbol: signal.Symbol, Action: models.ActionSell}

	if _, open := s.positions[signal.Symbol]; !open {
		result.Status = models.TradeNoOpenPosition
		result.Reason = errors.ErrNoOpenPosition.Error()
		return result
	}

	trade := s.closePosition(signal.Symbol, bar.Close, bar.Timestamp, models.ExitReasonSignal)
	result.Status = models.TradeExecuted
	result.Trade = trade
	result.Order = s.filledOrder(signal.Symbol, models.ActionSell, trade.Shares, bar.Timestamp)
	logging.LogFill(s.logger, signal.Symbol, models.ActionSell, trade.Shares, trade.ExitPrice)
	return result
}

// CheckExits applies stop-loss and take-profit rules for a symbol against
// the incoming bar, before any new signal is considered. Stop-loss wins when
// both trigger within the same bar.
func (s *Simulator) CheckExits(symbol string, bar models.Bar) *models.TradeResult {
	p, ok := s.positions[symbol]
	if !ok {
		return nil
	}
	s.ObservePrice(symbol, bar.Close)

	if s.cfg.StopLossPct > 0 {
		stopPrice := p.EntryPrice * (1 - s.cfg.StopLossPct)
		if bar.Low <= stopPrice {
			trade := s.closePosition(symbol, stopPrice, bar.Timestamp, models.ExitReasonStopLoss)
			logging.LogForcedExit(s.logger, symbol, models.ExitReasonStopLoss, trade.ExitPrice, trade.PnL)
			return &models.TradeResult{
				Symbol: symbol,
				Action: models.ActionSell,
				Status: models.TradeExecuted,
				Reason: string(models.ExitReasonStopLoss),
				Trade:  trade,
			}
		}
	}

	if s.cfg.TakeProfitPct > 0 {
		targetPrice := p.EntryPrice * (1 + s.cfg.TakeProfitPct)
		if bar.High >= targetPrice {
			trade := s.closePosition(symbol, targetPrice, bar.Timestamp, models.ExitReasonTakeProfit)
			logging.LogForcedExit(s.logger, symbol, models.ExitReasonTakeProfit, trade.ExitPrice, trade.PnL)
			return &models.TradeResult{
				Symbol: symbol,
				Action: models.ActionSell,
				Status: models.TradeExecuted,
				Reason: string(models.ExitReasonTakeProfit),
				Trade:  trade,
			}
		}
	}

	return nil
}

// AdjustPosition moves a symbol's holding toward targetShares at the given
// quote, recording any reduction as a REBALANCE exit. Increases bypass the
// confidence gate but face the same circuit-breaker and risk checks as a
// signal entry, with the resulting position capped at the equity fraction
// limit rather than rejected.
func (s *Simulator) AdjustPosition(symbol string, targetShares int, quote float64, ts time.Time) *models.TradeResult {
	s.ObservePrice(symbol, quote)
	if targetShares < 0 {
		targetShares = 0
	}

	current := 0
	if p, ok := s.positions[symbol]; ok {
		current = p.Shares
	}

	switch {
	case targetShares == current:
		return nil
	case targetShares < current:
		return s.reducePosition(symbol, current-targetShares, quote, ts)
	default:
		return s.increasePosition(symbol, current, targetShares-current, quote, ts)
	}
}

func (s *Simulator) reducePosition(symbol string, sellShares int, quote float64, ts time.Time) *models.TradeResult {
	p := s.positions[symbol]
	if sellShares >= p.Shares {
		trade := s.closePosition(symbol, quote, ts, models.ExitReasonRebalance)
		return &models.TradeResult{
			Symbol: symbol,
			Action: models.ActionSell,
			Status: models.TradeExecuted,
			Reason: string(models.ExitReasonRebalance),
			Trade:  trade,
		}
	}

	execPrice := s.executionPrice(quote, sellShares, false)
	proceeds := execPrice * float64(sellShares)
	commission := proceeds * s.cfg.CommissionRate
	s.cash += proceeds - commission

	pnl := (execPrice-p.EntryPrice)*float64(sellShares) - commission
	trade := models.ClosedTrade{
		Symbol:         symbol,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      execPrice,
		Shares:         sellShares,
		EntryTime:      p.EntryTime,
		ExitTime:       ts,
		CommissionPaid: commission,
		PnL:            pnl,
		ReturnPct:      pnl / (p.EntryPrice * float64(sellShares)),
		ExitReason:     models.ExitReasonRebalance,
	}
	s.trades = append(s.trades, trade)
	p.Shares -= sellShares

	return &models.TradeResult{
		Symbol: symbol,
		Action: models.ActionSell,
		Status: models.TradeExecuted,
		Reason: string(models.ExitReasonRebalance),
		Trade:  &trade,
	}
}

func (s *Simulator) increasePosition(symbol string, current, buyShares int, quote float64, ts time.Time) *models.TradeResult {
	if s.breaker.Tripped() {
		result := &models.TradeResult{
			Symbol: symbol,
			Action: models.ActionBuy,
			Status: models.TradeRiskLimitExceeded,
			Reason: errors.ErrCircuitBreakerActive.Error(),
		}
		logging.LogSkippedOrder(s.logger, symbol, models.ActionBuy, result.Status, result.Reason)
		return result
	}

	equity := s.Equity()

	// The resulting position honors the same equity fraction cap as a fresh
	// entry; the target is shrunk, not rejected.
	if quote > 0 && equity > 0 {
		limit := int(math.Floor(equity * s.cfg.MaxPositionSize / quote))
		if current+buyShares > limit {
			buyShares = limit - current
		}
	}
	if buyShares <= 0 {
		return nil
	}

	if err := s.risk.CanOpenPosition(symbol, float64(current+buyShares)*quote, equity, s.positions); err != nil {
		result := &models.TradeResult{
			Symbol: symbol,
			Action: models.ActionBuy,
			Status: models.TradeRiskLimitExceeded,
			Reason: err.Error(),
		}
		logging.LogSkippedOrder(s.logger, symbol, models.ActionBuy, result.Status, result.Reason)
		return result
	}

	execPrice := s.executionPrice(quote, buyShares, true)
	cost := execPrice * float64(buyShares)
	commission := cost * s.cfg.CommissionRate

	for buyShares > 0 && cost+commission > s.cash {
		buyShares--
		execPrice = s.executionPrice(quote, buyShares, true)
		cost = execPrice * float64(buyShares)
		commission = cost * s.cfg.CommissionRate
	}
	if buyShares <= 0 {
		return &models.TradeResult{
			Symbol: symbol,
			Action: models.ActionBuy,
			Status: models.TradeInsufficientCapital,
			Reason: errors.NewCapitalError(symbol, quote, s.cash).Error(),
		}
	}

	s.cash -= cost + commission

	if p, ok := s.positions[symbol]; ok {
		// Blend entry price across the combined position.
		total := float64(p.Shares) + float64(buyShares)
		p.EntryPrice = (p.EntryPrice*float64(p.Shares) + execPrice*float64(buyShares)) / total
		p.Shares += buyShares
		s.entryCommission[symbol] += commission
	} else {
		s.positions[symbol] = &models.Position{
			Symbol:     symbol,
			Shares:     buyShares,
			EntryPrice: execPrice,
			EntryTime:  ts,
		}
		s.entryCommission[symbol] = commission
	}

	return &models.TradeResult{
		Symbol: symbol,
		Action: models.ActionBuy,
		Status: models.TradeExecuted,
		Reason: string(models.ExitReasonRebalance),
		Order:  s.filledOrder(symbol, models.ActionBuy, buyShares, ts),
	}
}

// CloseAll liquidates every open position at its last observed price,
// recording END_OF_RUN exits. Symbols close in deterministic order.
func (s *Simulator) CloseAll(ts time.Time) []models.ClosedTrade {
	symbols := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var closed []models.ClosedTrade
	for _, sym := range symbols {
		quote, ok := s.lastPrice[sym]
		if !ok {
			quote = s.positions[sym].EntryPrice
		}
		closed = append(closed, *s.closePosition(sym, quote, ts, models.ExitReasonEndOfRun))
	}
	return closed
}

// closePosition fully exits a position at the given quote and records the
// immutable trade. The caller must have verified the position exists.
func (s *Simulator) closePosition(symbol string, quote float64, ts time.Time, reason models.ExitReason) *models.ClosedTrade {
	p := s.positions[symbol]
	shares := p.Shares

	execPrice := s.executionPrice(quote, shares, false)
	proceeds := execPrice * float64(shares)
	exitCommission := proceeds * s.cfg.CommissionRate
	s.cash += proceeds - exitCommission

	totalCommission := exitCommission + s.entryCommission[symbol]
	pnl := (execPrice-p.EntryPrice)*float64(shares) - totalCommission

	trade := models.ClosedTrade{
		Symbol:         symbol,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      execPrice,
		Shares:         shares,
		EntryTime:      p.EntryTime,
		ExitTime:       ts,
		CommissionPaid: totalCommission,
		PnL:            pnl,
		ReturnPct:      pnl / (p.EntryPrice * float64(shares)),
		ExitReason:     reason,
	}
	s.trades = append(s.trades, trade)

	delete(s.positions, symbol)
	delete(s.entryCommission, symbol)

	return &trade
}

// executionPrice applies slippage, half the synthetic spread, and market
// impact to the quote. Buys pay up, sells receive less.
func (s *Simulator) executionPrice(quote float64, shares int, isBuy bool) float64 {
	friction := (s.cfg.SlippageBps + s.cfg.SpreadBps/2) / 10000

	orderValue := quote * float64(shares)
	if s.cfg.ReferenceLiquidity > 0 {
		friction += s.cfg.ImpactCoeff * orderValue / s.cfg.ReferenceLiquidity
	}

	if isBuy {
		return quote * (1 + friction)
	}
	return quote * (1 - friction)
}

func (s *Simulator) filledOrder(symbol string, action models.SignalAction, shares int, ts time.Time) *models.Order {
	return &models.Order{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Action:   action,
		Type:     models.OrderTypeMarket,
		Quantity: shares,
		Status:   models.OrderFilled,
		PlacedAt: ts,
	}
}
