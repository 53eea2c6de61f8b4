package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func sampleBars(n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		out[i] = models.Bar{
			Timestamp: day(i),
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100.5 + float64(i),
			Volume:    int64(1000 + i),
		}
	}
	return out
}

func TestSQLiteStore_SaveAndGetBars(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveBars(ctx, "ACME", sampleBars(10)); err != nil {
		t.Fatal(err)
	}

	bars, err := s.GetBars(ctx, "ACME", day(2), day(6))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 5 {
		t.Fatalf("got %d bars, want 5", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Timestamp.Before(bars[i].Timestamp) {
			t.Fatal("bars must be ascending")
		}
	}
	if bars[0].Close != 102.5 {
		t.Errorf("first close = %f, want 102.5", bars[0].Close)
	}
}

func TestSQLiteStore_UpsertReplacesRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bars := sampleBars(3)
	if err := s.SaveBars(ctx, "ACME", bars); err != nil {
		t.Fatal(err)
	}

	bars[1].Close = 999
	if err := s.SaveBars(ctx, "ACME", bars); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBars(ctx, "ACME", day(0), day(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("re-ingest must not duplicate: got %d bars", len(got))
	}
	if got[1].Close != 999 {
		t.Errorf("close = %f, want upserted 999", got[1].Close)
	}
}

func TestSQLiteStore_GetBarsUnknownSymbol(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetBars(context.Background(), "NOPE", day(0), day(9))
	if !errors.Is(err, errors.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestSQLiteStore_BarRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, count, err := s.BarRange(ctx, "ACME"); err != nil || count != 0 {
		t.Fatalf("empty coverage: count=%d err=%v", count, err)
	}

	if err := s.SaveBars(ctx, "ACME", sampleBars(7)); err != nil {
		t.Fatal(err)
	}

	first, last, count, err := s.BarRange(ctx, "ACME")
	if err != nil {
		t.Fatal(err)
	}
	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}
	if !first.Equal(day(0)) || !last.Equal(day(6)) {
		t.Errorf("range = %v..%v, want day 0..6", first, last)
	}
}

func TestSQLiteStore_RunRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := &models.BacktestResult{
		RunID:          "run-123",
		Symbol:         "ACME",
		Strategy:       "sma_crossover",
		StartDate:      day(0),
		EndDate:        day(30),
		InitialCapital: 100000,
		FinalEquity:    112000,
		Bars:           31,
		Metrics: models.PerformanceMetrics{
			TotalReturn: 0.12,
			SharpeRatio: 1.4,
			TotalTrades: 9,
		},
	}

	if err := s.SaveRun(ctx, result); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.GetRun(ctx, "run-123")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Symbol != "ACME" || loaded.FinalEquity != 112000 || loaded.Metrics.TotalTrades != 9 {
		t.Errorf("roundtrip mismatch: %+v", loaded)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-123" || runs[0].TotalReturn != 0.12 {
		t.Errorf("list mismatch: %+v", runs)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, errors.ErrDataUnavailable) {
		t.Errorf("missing run err = %v, want ErrDataUnavailable", err)
	}
}
