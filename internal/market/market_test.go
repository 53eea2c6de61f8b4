package market

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func makeBars(n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		out[i] = models.Bar{
			Timestamp: day(i),
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			Volume:    1000,
		}
	}
	return out
}

func TestValidateBars(t *testing.T) {
	if err := ValidateBars("ACME", makeBars(5)); err != nil {
		t.Fatalf("valid bars rejected: %v", err)
	}

	outOfOrder := makeBars(3)
	outOfOrder[2].Timestamp = outOfOrder[0].Timestamp
	if err := ValidateBars("ACME", outOfOrder); err == nil {
		t.Error("out-of-order bars should be rejected")
	}

	badOHLC := makeBars(2)
	badOHLC[1].High = 50 // below Low
	if err := ValidateBars("ACME", badOHLC); err == nil {
		t.Error("high below low should be rejected")
	}

	negVolume := makeBars(2)
	negVolume[1].Volume = -1
	if err := ValidateBars("ACME", negVolume); err == nil {
		t.Error("negative volume should be rejected")
	}
}

func TestSliceRange(t *testing.T) {
	bars := makeBars(10)

	got := SliceRange(bars, day(2), day(5))
	if len(got) != 4 {
		t.Fatalf("got %d bars, want 4", len(got))
	}
	if !got[0].Timestamp.Equal(day(2)) || !got[3].Timestamp.Equal(day(5)) {
		t.Error("range boundaries are inclusive")
	}

	if got := SliceRange(bars, day(20), day(30)); got != nil {
		t.Error("empty range should be nil")
	}
}

func TestReturns(t *testing.T) {
	got := Returns([]float64{100, 110, 99})
	if len(got) != 2 {
		t.Fatalf("got %d returns, want 2", len(got))
	}
	if got[0] != 0.10 {
		t.Errorf("first return = %f, want 0.10", got[0])
	}
	if got[1] != 99.0/110-1 {
		t.Errorf("second return = %f", got[1])
	}

	if Returns([]float64{100}) != nil {
		t.Error("single close should yield nil")
	}
}

func TestCSVProvider_LoadsAndSorts(t *testing.T) {
	dir := t.TempDir()
	// Rows deliberately out of order on disk.
	csv := "date,open,high,low,close,volume\n" +
		"2024-01-03,102,103,101,102,1200\n" +
		"2024-01-01,100,101,99,100,1000\n" +
		"2024-01-02,101,102,100,101,1100\n"
	if err := os.WriteFile(filepath.Join(dir, "ACME.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewCSVProvider(dir)
	bars, err := p.GetBars(context.Background(), "ACME", day(0), day(9))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Timestamp.Before(bars[i].Timestamp) {
			t.Fatal("bars must come back sorted")
		}
	}
	if bars[0].Close != 100 || bars[2].Close != 102 {
		t.Error("closes out of order after sort")
	}
}

func TestCSVProvider_UnknownSymbol(t *testing.T) {
	p := NewCSVProvider(t.TempDir())
	_, err := p.GetBars(context.Background(), "NOPE", day(0), day(9))
	if !errors.Is(err, errors.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestCSVProvider_Symbols(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"beta.csv", "ACME.csv", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("date,open,high,low,close,volume\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	p := NewCSVProvider(dir)
	symbols, err := p.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "ACME" || symbols[1] != "BETA" {
		t.Errorf("symbols = %v, want [ACME BETA]", symbols)
	}
}

// countingProvider records how many underlying fetches actually happen.
type countingProvider struct {
	fetches atomic.Int64
	bars    []models.Bar
}

func (p *countingProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	p.fetches.Add(1)
	time.Sleep(50 * time.Millisecond) // widen the concurrency window
	return p.bars, nil
}

func TestCachingProvider_CollapsesConcurrentFetches(t *testing.T) {
	inner := &countingProvider{bars: makeBars(10)}
	cached := NewCachingProvider(inner)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bars, err := cached.GetBars(context.Background(), "ACME", day(0), day(9))
			if err != nil || len(bars) != 10 {
				t.Errorf("unexpected result: %v, %d bars", err, len(bars))
			}
		}()
	}
	wg.Wait()

	if got := inner.fetches.Load(); got != 1 {
		t.Errorf("underlying fetches = %d, want 1", got)
	}

	// A later call is served from cache without another fetch.
	if _, err := cached.GetBars(context.Background(), "ACME", day(0), day(9)); err != nil {
		t.Fatal(err)
	}
	if got := inner.fetches.Load(); got != 1 {
		t.Errorf("cached call triggered fetch: %d", got)
	}

	// Different range misses the cache.
	if _, err := cached.GetBars(context.Background(), "ACME", day(0), day(5)); err != nil {
		t.Fatal(err)
	}
	if got := inner.fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2 after new range", got)
	}
}

func TestCachingProvider_CallersGetIndependentCopies(t *testing.T) {
	inner := &countingProvider{bars: makeBars(3)}
	cached := NewCachingProvider(inner)

	a, _ := cached.GetBars(context.Background(), "ACME", day(0), day(9))
	a[0].Close = 1

	b, _ := cached.GetBars(context.Background(), "ACME", day(0), day(9))
	if b[0].Close == 1 {
		t.Error("cache must not share backing arrays with callers")
	}
}
