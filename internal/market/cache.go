package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"signal-trader/internal/models"
)

// CachingProvider wraps another Provider with an in-memory cache. Concurrent
// requests for the same symbol and range are collapsed into a single
// underlying fetch via singleflight; optimizer runs hammer the same windows.
type CachingProvider struct {
	inner Provider
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string][]models.Bar
}

var _ Provider = (*CachingProvider)(nil)

// NewCachingProvider wraps inner with a read-through cache.
func NewCachingProvider(inner Provider) *CachingProvider {
	return &CachingProvider{
		inner: inner,
		cache: make(map[string][]models.Bar),
	}
}

// GetBars implements Provider.
func (p *CachingProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	key := cacheKey(symbol, start, end)

	p.mu.RLock()
	bars, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return copyBars(bars), nil
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		fetched, err := p.inner.GetBars(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[key] = fetched
		p.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	return copyBars(v.([]models.Bar)), nil
}

// Invalidate drops all cached ranges. Callers invalidate after ingesting
// new bars for any symbol.
func (p *CachingProvider) Invalidate() {
	p.mu.Lock()
	p.cache = make(map[string][]models.Bar)
	p.mu.Unlock()
}

func cacheKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", symbol, start.Unix(), end.Unix())
}

func copyBars(bars []models.Bar) []models.Bar {
	out := make([]models.Bar, len(bars))
	copy(out, bars)
	return out
}
