package sim

import "time"

// DailyCircuitBreaker blocks new entries once the ledger's equity has fallen
// more than the configured fraction below its value at the start of the
// simulated day. Exits stay allowed. The breaker resets at the next day
// boundary in simulated time.
type DailyCircuitBreaker struct {
	limitPct       float64
	day            time.Time
	dayStartEquity float64
	tripped        bool
}

// NewDailyCircuitBreaker creates a breaker with the given loss fraction.
// A limit of 0 disables the breaker.
func NewDailyCircuitBreaker(limitPct float64) *DailyCircuitBreaker {
	return &DailyCircuitBreaker{limitPct: limitPct}
}

// Observe records the ledger equity at a simulated timestamp. Crossing a day
// boundary re-bases the reference equity and clears any trip.
func (cb *DailyCircuitBreaker) Observe(ts time.Time, equity float64) {
	day := ts.Truncate(24 * time.Hour)
	if cb.day.IsZero() || day.After(cb.day) {
		cb.day = day
		cb.dayStartEquity = equity
		cb.tripped = false
		return
	}

	if cb.limitPct <= 0 || cb.tripped || cb.dayStartEquity <= 0 {
		return
	}
	loss := (cb.dayStartEquity - equity) / cb.dayStartEquity
	if loss > cb.limitPct {
		cb.tripped = true
	}
}

// Tripped reports whether new entries are currently blocked.
func (cb *DailyCircuitBreaker) Tripped() bool {
	return cb.tripped
}

// DayLoss returns the current loss fraction relative to the day-start equity.
func (cb *DailyCircuitBreaker) DayLoss(equity float64) float64 {
	if cb.dayStartEquity <= 0 {
		return 0
	}
	return (cb.dayStartEquity - equity) / cb.dayStartEquity
}
