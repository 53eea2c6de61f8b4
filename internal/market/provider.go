// Package market provides historical bar data access for the simulation
// engine. Providers return validated, chronologically ordered bars; missing
// periods stay missing rather than being interpolated.
package market

import (
	"context"
	"sort"
	"time"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

// Provider serves historical bars for a symbol within a date range.
type Provider interface {
	// GetBars returns bars with Timestamp in [start, end], strictly
	// ascending. An unknown symbol or empty range yields ErrDataUnavailable.
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error)
}

// ValidateBars checks that bars are strictly ascending in time and carry
// sane OHLC values. Returns the first violation found.
func ValidateBars(symbol string, bars []models.Bar) error {
	for i, b := range bars {
		if b.Timestamp.IsZero() {
			return errors.NewDataError(symbol, "bar has zero timestamp", nil)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			return errors.NewDataError(symbol, "bars out of order at "+b.Timestamp.Format("2006-01-02"), nil)
		}
		if b.High < b.Low || b.Close <= 0 || b.Open <= 0 {
			return errors.NewDataError(symbol, "invalid OHLC at "+b.Timestamp.Format("2006-01-02"), nil)
		}
		if b.Volume < 0 {
			return errors.NewDataError(symbol, "negative volume at "+b.Timestamp.Format("2006-01-02"), nil)
		}
	}
	return nil
}

// SliceRange returns the sub-slice of bars with timestamps in [start, end].
// Assumes bars are already ascending.
func SliceRange(bars []models.Bar, start, end time.Time) []models.Bar {
	lo := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(bars), func(i int) bool {
		return bars[i].Timestamp.After(end)
	})
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}

// Closes extracts the close series from a bar slice.
func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Returns computes simple one-period returns from a close series. The
// result has len(closes)-1 entries; fewer than two closes yields nil.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}
