// Package store provides data persistence implementations.
package store

import (
	"context"
	"time"

	"signal-trader/internal/models"
)

// DataStore defines the persistence surface for bars and run artifacts.
type DataStore interface {
	// SaveBars upserts bars for a symbol. Re-ingesting the same timestamp
	// replaces the row.
	SaveBars(ctx context.Context, symbol string, bars []models.Bar) error

	// GetBars returns bars for a symbol in [start, end], ascending.
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error)

	// BarRange reports the first and last stored timestamps and the bar
	// count for a symbol. count is 0 when the symbol is unknown.
	BarRange(ctx context.Context, symbol string) (first, last time.Time, count int, err error)

	// SaveRun persists a completed backtest run.
	SaveRun(ctx context.Context, result *models.BacktestResult) error

	// ListRuns returns summaries of stored runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// GetRun loads a stored run by ID.
	GetRun(ctx context.Context, runID string) (*models.BacktestResult, error)

	// Close closes the store.
	Close() error
}

// RunSummary is a row in the run history listing.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	TotalReturn float64   `json:"total_return"`
	SharpeRatio float64   `json:"sharpe_ratio"`
	TotalTrades int       `json:"total_trades"`
	CreatedAt   time.Time `json:"created_at"`
}
