package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timestamp)
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		initial_capital REAL NOT NULL,
		final_equity REAL NOT NULL,
		total_return REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bars_symbol_time ON bars(symbol, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveBars upserts bars for a symbol inside a single transaction.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return errors.NewDataError(symbol, "inserting bar", err)
		}
	}

	return tx.Commit()
}

// GetBars returns bars for a symbol in [start, end], ascending.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, errors.NewDataError(symbol, "querying bars", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, errors.NewDataError(symbol, "scanning bar", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDataError(symbol, "iterating bars", err)
	}
	if len(bars) == 0 {
		return nil, errors.NewDataError(symbol, "no bars in requested range", errors.ErrDataUnavailable)
	}

	return bars, nil
}

// BarRange reports stored coverage for a symbol.
func (s *SQLiteStore) BarRange(ctx context.Context, symbol string) (time.Time, time.Time, int, error) {
	var first, last sql.NullTime
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(timestamp), MAX(timestamp), COUNT(*)
		FROM bars WHERE symbol = ?
	`, symbol).Scan(&first, &last, &count)
	if err != nil {
		return time.Time{}, time.Time{}, 0, errors.NewDataError(symbol, "querying coverage", err)
	}
	if count == 0 {
		return time.Time{}, time.Time{}, 0, nil
	}
	return first.Time, last.Time, count, nil
}

// SaveRun persists a completed backtest run. The full result is stored as
// JSON alongside indexed summary columns.
func (s *SQLiteStore) SaveRun(ctx context.Context, result *models.BacktestResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshalling run result")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(run_id, symbol, strategy, start_date, end_date, initial_capital,
		 final_equity, total_return, sharpe_ratio, total_trades, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, result.Symbol, result.Strategy,
		result.StartDate.UTC(), result.EndDate.UTC(),
		result.InitialCapital, result.FinalEquity,
		result.Metrics.TotalReturn, result.Metrics.SharpeRatio,
		result.Metrics.TotalTrades, string(payload))
	if err != nil {
		return errors.Wrap(err, "inserting run")
	}

	return nil
}

// ListRuns returns summaries of stored runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, symbol, strategy, start_date, end_date,
		       total_return, sharpe_ratio, total_trades, created_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying runs")
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Symbol, &r.Strategy, &r.StartDate, &r.EndDate,
			&r.TotalReturn, &r.SharpeRatio, &r.TotalTrades, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning run summary")
		}
		summaries = append(summaries, r)
	}

	return summaries, rows.Err()
}

// GetRun loads a stored run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*models.BacktestResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrDataUnavailable, "run %s not found", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying run")
	}

	var result models.BacktestResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, errors.Wrap(err, "unmarshalling run result")
	}

	return &result, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
