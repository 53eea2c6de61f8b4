package predict

import (
	"context"

	"signal-trader/internal/models"
)

// SMACrossover signals on short/long moving average crossovers.
type SMACrossover struct {
	shortPeriod int
	longPeriod  int
	confidence  float64
}

var _ Provider = (*SMACrossover)(nil)

// NewSMACrossover creates an SMA crossover provider. Defaults: 10/20.
func NewSMACrossover(params Params) *SMACrossover {
	return &SMACrossover{
		shortPeriod: params.intOr("short_period", 10),
		longPeriod:  params.intOr("long_period", 20),
		confidence:  params.floatOr("confidence", 0.70),
	}
}

func (s *SMACrossover) Name() string { return "sma_crossover" }

func (s *SMACrossover) Predict(ctx context.Context, symbol string, window []models.Bar) (models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return models.Signal{}, err
	}

	index := len(window) - 1
	if index < s.longPeriod {
		return hold(symbol, window), nil
	}

	shortNow := sma(window, index, s.shortPeriod)
	longNow := sma(window, index, s.longPeriod)
	shortPrev := sma(window, index-1, s.shortPeriod)
	longPrev := sma(window, index-1, s.longPeriod)

	if shortPrev <= longPrev && shortNow > longNow {
		return signalAt(symbol, window, models.ActionBuy, s.confidence), nil
	}
	if shortPrev >= longPrev && shortNow < longNow {
		return signalAt(symbol, window, models.ActionSell, s.confidence), nil
	}

	return hold(symbol, window), nil
}

// RSIReversal signals when RSI crosses back out of oversold or overbought
// territory.
type RSIReversal struct {
	period     int
	oversold   float64
	overbought float64
	confidence float64
}

var _ Provider = (*RSIReversal)(nil)

// NewRSIReversal creates an RSI reversal provider. Defaults: 14, 30/70.
func NewRSIReversal(params Params) *RSIReversal {
	return &RSIReversal{
		period:     params.intOr("period", 14),
		oversold:   params.floatOr("oversold", 30),
		overbought: params.floatOr("overbought", 70),
		confidence: params.floatOr("confidence", 0.65),
	}
}

func (s *RSIReversal) Name() string { return "rsi_reversal" }

func (s *RSIReversal) Predict(ctx context.Context, symbol string, window []models.Bar) (models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return models.Signal{}, err
	}

	index := len(window) - 1
	if index < s.period+1 {
		return hold(symbol, window), nil
	}

	now := rsi(window, index, s.period)
	prev := rsi(window, index-1, s.period)

	if prev <= s.oversold && now > s.oversold {
		return signalAt(symbol, window, models.ActionBuy, s.confidence), nil
	}
	if prev >= s.overbought && now < s.overbought {
		return signalAt(symbol, window, models.ActionSell, s.confidence), nil
	}

	return hold(symbol, window), nil
}

// MACD signals on MACD line crossing its signal line.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	confidence   float64
}

var _ Provider = (*MACD)(nil)

// NewMACD creates a MACD crossover provider. Defaults: 12/26/9.
func NewMACD(params Params) *MACD {
	return &MACD{
		fastPeriod:   params.intOr("fast_period", 12),
		slowPeriod:   params.intOr("slow_period", 26),
		signalPeriod: params.intOr("signal_period", 9),
		confidence:   params.floatOr("confidence", 0.75),
	}
}

func (s *MACD) Name() string { return "macd" }

func (s *MACD) Predict(ctx context.Context, symbol string, window []models.Bar) (models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return models.Signal{}, err
	}

	index := len(window) - 1
	if index < s.slowPeriod+s.signalPeriod {
		return hold(symbol, window), nil
	}

	macdNow, sigNow := macdLine(window, index, s.fastPeriod, s.slowPeriod, s.signalPeriod)
	macdPrev, sigPrev := macdLine(window, index-1, s.fastPeriod, s.slowPeriod, s.signalPeriod)

	if macdPrev <= sigPrev && macdNow > sigNow {
		return signalAt(symbol, window, models.ActionBuy, s.confidence), nil
	}
	if macdPrev >= sigPrev && macdNow < sigNow {
		return signalAt(symbol, window, models.ActionSell, s.confidence), nil
	}

	return hold(symbol, window), nil
}
