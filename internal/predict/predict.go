// Package predict produces per-bar trading signals. Providers see only
// history up to and including the current bar; they never look ahead.
package predict

import (
	"context"
	"fmt"
	"strings"

	"signal-trader/internal/models"
)

// Provider generates a signal for the latest bar in the window. The window
// holds bars in ascending order ending at the bar being evaluated.
type Provider interface {
	Name() string
	Predict(ctx context.Context, symbol string, window []models.Bar) (models.Signal, error)
}

// Params carries strategy tuning parameters. Unknown keys are ignored;
// missing keys fall back to strategy defaults.
type Params map[string]float64

func (p Params) intOr(key string, def int) int {
	if v, ok := p[key]; ok && v > 0 {
		return int(v)
	}
	return def
}

func (p Params) floatOr(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// New constructs a provider by strategy name.
func New(strategy string, params Params) (Provider, error) {
	switch strings.ToLower(strategy) {
	case "sma_crossover", "":
		return NewSMACrossover(params), nil
	case "rsi_reversal":
		return NewRSIReversal(params), nil
	case "macd":
		return NewMACD(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

// Strategies lists the built-in strategy names.
func Strategies() []string {
	return []string{"sma_crossover", "rsi_reversal", "macd"}
}

func hold(symbol string, window []models.Bar) models.Signal {
	sig := models.Signal{Symbol: symbol, Action: models.ActionHold}
	if len(window) > 0 {
		sig.Timestamp = window[len(window)-1].Timestamp
	}
	return sig
}

func signalAt(symbol string, window []models.Bar, action models.SignalAction, confidence float64) models.Signal {
	return models.Signal{
		Symbol:     symbol,
		Timestamp:  window[len(window)-1].Timestamp,
		Action:     action,
		Confidence: confidence,
	}
}
