package market

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

// csvBar is the on-disk row shape for one daily bar.
type csvBar struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

// CSVProvider serves bars from per-symbol CSV files in a directory.
// Files are named <SYMBOL>.csv with a date,open,high,low,close,volume
// header. Rows may be in any order on disk; loads sort and validate.
type CSVProvider struct {
	dir string

	mu     sync.RWMutex
	loaded map[string][]models.Bar
}

var _ Provider = (*CSVProvider)(nil)

// NewCSVProvider creates a CSV-backed provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{
		dir:    dir,
		loaded: make(map[string][]models.Bar),
	}
}

// GetBars implements Provider.
func (p *CSVProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars, err := p.load(symbol)
	if err != nil {
		return nil, err
	}

	ranged := SliceRange(bars, start, end)
	if len(ranged) == 0 {
		return nil, errors.NewDataError(symbol, "no bars in requested range", errors.ErrDataUnavailable)
	}

	out := make([]models.Bar, len(ranged))
	copy(out, ranged)
	return out, nil
}

// Symbols lists the symbols available in the directory.
func (p *CSVProvider) Symbols() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading csv directory")
	}
	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		symbols = append(symbols, strings.ToUpper(strings.TrimSuffix(name, ".csv")))
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (p *CSVProvider) load(symbol string) ([]models.Bar, error) {
	p.mu.RLock()
	bars, ok := p.loaded[symbol]
	p.mu.RUnlock()
	if ok {
		return bars, nil
	}

	path := filepath.Join(p.dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewDataError(symbol, "no csv file", errors.ErrDataUnavailable)
		}
		return nil, errors.NewDataError(symbol, "opening csv file", err)
	}
	defer f.Close()

	var rows []csvBar
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, errors.NewDataError(symbol, "parsing csv", err)
	}

	bars = make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		ts, err := parseDate(r.Date)
		if err != nil {
			return nil, errors.NewDataError(symbol, "parsing date "+r.Date, err)
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	if err := ValidateBars(symbol, bars); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.loaded[symbol] = bars
	p.mu.Unlock()

	return bars, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02-01-2006"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.Wrap(errors.ErrDataUnavailable, "unrecognised date format "+s)
}
