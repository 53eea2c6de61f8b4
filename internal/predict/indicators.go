package predict

import "signal-trader/internal/models"

// sma returns the simple moving average of closes ending at index.
func sma(bars []models.Bar, index, period int) float64 {
	if index < period-1 {
		return 0
	}
	var sum float64
	for i := index - period + 1; i <= index; i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// ema returns the exponential moving average of closes ending at index,
// seeded with the SMA of the first period.
func ema(bars []models.Bar, index, period int) float64 {
	if index < period-1 {
		return sma(bars, index, period)
	}

	multiplier := 2.0 / float64(period+1)
	v := sma(bars, period-1, period)
	for i := period; i <= index; i++ {
		v = (bars[i].Close-v)*multiplier + v
	}
	return v
}

// rsi returns the relative strength index of closes ending at index.
// Neutral 50 until enough history accumulates.
func rsi(bars []models.Bar, index, period int) float64 {
	if index < period {
		return 50
	}

	var gains, losses float64
	for i := index - period + 1; i <= index; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// macdLine returns the MACD line and its signal line at index. The signal
// line is an EMA of the MACD series over signalPeriod.
func macdLine(bars []models.Bar, index, fastPeriod, slowPeriod, signalPeriod int) (float64, float64) {
	macdAt := func(i int) float64 {
		return ema(bars, i, fastPeriod) - ema(bars, i, slowPeriod)
	}

	macd := macdAt(index)

	start := index - signalPeriod + 1
	if start < slowPeriod-1 {
		start = slowPeriod - 1
	}
	if start > index {
		return macd, macd
	}

	multiplier := 2.0 / float64(signalPeriod+1)
	signal := macdAt(start)
	for i := start + 1; i <= index; i++ {
		signal = (macdAt(i)-signal)*multiplier + signal
	}

	return macd, signal
}
