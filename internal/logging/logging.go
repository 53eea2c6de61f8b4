// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"signal-trader/internal/config"
	"signal-trader/internal/models"
)

// New creates a logger from the logging configuration. Console output uses
// zerolog's console writer; file output rotates via lumberjack.
func New(cfg config.LoggingConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stderr
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithRun adds a run identifier to the logger context.
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}

// LogFill logs an executed simulated fill.
func LogFill(logger zerolog.Logger, symbol string, action models.SignalAction, shares int, price float64) {
	logger.Info().
		Str("event", "fill").
		Str("symbol", symbol).
		Str("action", string(action)).
		Int("shares", shares).
		Float64("price", price).
		Msg("order filled")
}

// LogSkippedOrder logs a recoverable skipped order with its reason.
func LogSkippedOrder(logger zerolog.Logger, symbol string, action models.SignalAction, status models.TradeStatus, reason string) {
	logger.Warn().
		Str("event", "skipped_order").
		Str("symbol", symbol).
		Str("action", string(action)).
		Str("status", string(status)).
		Str("reason", reason).
		Msg("order skipped")
}

// LogForcedExit logs a stop-loss or take-profit forced close.
func LogForcedExit(logger zerolog.Logger, symbol string, reason models.ExitReason, price, pnl float64) {
	logger.Info().
		Str("event", "forced_exit").
		Str("symbol", symbol).
		Str("reason", string(reason)).
		Float64("price", price).
		Float64("pnl", pnl).
		Msg("position force-closed")
}

// LogRebalance logs a portfolio rebalance.
func LogRebalance(logger zerolog.Logger, trigger string, orders int, targets map[string]float64) {
	logger.Info().
		Str("event", "rebalance").
		Str("trigger", trigger).
		Int("orders", orders).
		Int("targets", len(targets)).
		Msg("portfolio rebalanced")
}
