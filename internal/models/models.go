// Package models provides domain models for the simulation engine.
package models

import (
	"time"
)

// SignalAction represents the action recommended by a prediction provider.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Signal represents a per-symbol, per-bar trading signal produced by a
// prediction provider. Signals are immutable once created and consumed
// exactly once per timestamp per symbol.
type Signal struct {
	Symbol      string       `json:"symbol"`
	Timestamp   time.Time    `json:"timestamp"`
	Action      SignalAction `json:"action"`
	Confidence  float64      `json:"confidence"` // [0, 1]
	TargetPrice float64      `json:"target_price,omitempty"`
}

// Bar represents OHLCV data for a single discrete period (e.g. a daily close).
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// OrderType represents the type of a simulated order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// OrderStatus represents the lifecycle state of a simulated order.
// PENDING transitions to FILLED or CANCELLED; terminal states are final.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order represents a simulated order created in response to a signal or a
// risk-exit condition.
type Order struct {
	ID         string       `json:"id"`
	Symbol     string       `json:"symbol"`
	Action     SignalAction `json:"action"`
	Type       OrderType    `json:"order_type"`
	Quantity   int          `json:"quantity"`
	LimitPrice float64      `json:"limit_price,omitempty"`
	StopPrice  float64      `json:"stop_price,omitempty"`
	Status     OrderStatus  `json:"status"`
	PlacedAt   time.Time    `json:"placed_at"`
}

// Position represents an open position in a sub-ledger. At most one open
// position exists per symbol per ledger.
type Position struct {
	Symbol            string    `json:"symbol"`
	Shares            int       `json:"shares"`
	EntryPrice        float64   `json:"entry_price"`
	EntryTime         time.Time `json:"entry_time"`
	ConfidenceAtEntry float64   `json:"confidence_at_entry"`
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonSignal     ExitReason = "SIGNAL"
	ExitReasonStopLoss   ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ExitReasonRebalance  ExitReason = "REBALANCE"
	ExitReasonEndOfRun   ExitReason = "END_OF_RUN"
)

// ClosedTrade is the immutable record created when a position is closed.
// Trade history is append-only and never mutated after creation.
type ClosedTrade struct {
	Symbol         string     `json:"symbol"`
	EntryPrice     float64    `json:"entry_price"`
	ExitPrice      float64    `json:"exit_price"`
	Shares         int        `json:"shares"`
	EntryTime      time.Time  `json:"entry_time"`
	ExitTime       time.Time  `json:"exit_time"`
	CommissionPaid float64    `json:"commission_paid"`
	PnL            float64    `json:"pnl"`
	ReturnPct      float64    `json:"return_pct"`
	ExitReason     ExitReason `json:"exit_reason"`
}

// EquitySnapshot is appended once per simulated bar. The ordered sequence of
// snapshots forms the equity curve consumed by the analytics layer.
// Invariant: Cash + PositionsValue == TotalEquity.
type EquitySnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalEquity    float64   `json:"total_equity"`
}

// TradeStatus classifies the outcome of processing one signal.
type TradeStatus string

const (
	TradeExecuted            TradeStatus = "EXECUTED"
	TradeSkipped             TradeStatus = "SKIPPED"
	TradeInsufficientCapital TradeStatus = "INSUFFICIENT_CAPITAL"
	TradeRiskLimitExceeded   TradeStatus = "RISK_LIMIT_EXCEEDED"
	TradeNoOpenPosition      TradeStatus = "NO_OPEN_POSITION"
)

// TradeResult is returned by the simulator for every processed signal.
// Non-executed statuses are recoverable: the order is skipped and the
// ledger state is untouched.
type TradeResult struct {
	Symbol string       `json:"symbol"`
	Action SignalAction `json:"action"`
	Status TradeStatus  `json:"status"`
	Reason string       `json:"reason,omitempty"`
	Order  *Order       `json:"order,omitempty"`
	Trade  *ClosedTrade `json:"trade,omitempty"`
}

// Executed reports whether the signal resulted in a fill.
func (r TradeResult) Executed() bool {
	return r.Status == TradeExecuted
}
