// Package gateway is the Market-Data Gateway: read-through cached access to
// historical OHLCV series, rate-limited against its backing Source. Caches
// are read-only after population; eviction is TTL-based and needs no extra
// reader synchronization beyond the entry map's own mutex.
package gateway

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
)

// Source abstracts the Gateway's backing store. store.Store satisfies this
// directly — the Gateway depends on the narrowest interface it needs rather
// than the full Job Store contract.
type Source interface {
	ReadMarketPoints(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketPoint, error)
}

// MissingDataPolicy controls what Load returns when the Source has no
// persisted data for a symbol/range — a deployment policy knob the Executor
// must not care about.
type MissingDataPolicy string

const (
	// PolicyEmpty returns an empty series, which the Executor treats as a
	// precondition failure.
	PolicyEmpty MissingDataPolicy = "empty"
	// PolicySynthetic substitutes a deterministic synthetic series seeded
	// from the symbol and date range, so repeated loads of the same gap are
	// reproducible.
	PolicySynthetic MissingDataPolicy = "synthetic"
)

type cacheKey struct {
	symbol string
	start  time.Time
	end    time.Time
}

type cacheEntry struct {
	points    []*domain.MarketPoint
	expiresAt time.Time
}

// Gateway is the Executor's sole path to historical market data.
type Gateway struct {
	source  Source
	logger  *logging.Logger
	ttl     time.Duration
	policy  MissingDataPolicy
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// New builds a Gateway. ttl is the cache entry lifetime; ratePerSec bounds
// concurrent backend loads.
func New(source Source, logger *logging.Logger, ttl time.Duration, ratePerSec int, policy MissingDataPolicy) *Gateway {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &Gateway{
		source:  source,
		logger:  logger,
		ttl:     ttl,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		cache:   make(map[cacheKey]cacheEntry),
	}
}

// Load returns a chronologically sorted series with dates in [start, end],
// consulting the TTL cache before the Source. Cache key hygiene: keyed by
// the exact (symbol, start, end) triple — no range-intersection caching.
func (g *Gateway) Load(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketPoint, error) {
	key := cacheKey{symbol: symbol, start: start, end: end}

	if points, ok := g.readCache(key); ok {
		return points, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gateway rate limiter: %w", err)
	}

	points, err := g.source.ReadMarketPoints(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("gateway load failed for %s: %w", symbol, err)
	}

	if len(points) == 0 && g.policy == PolicySynthetic {
		points = syntheticSeries(symbol, start, end)
		g.logger.Warn().Str("symbol", symbol).Msg("no persisted market data, substituting synthetic series")
	}

	g.writeCache(key, points)
	return points, nil
}

func (g *Gateway) readCache(key cacheKey) ([]*domain.MarketPoint, bool) {
	g.mu.Lock()
	entry, ok := g.cache[key]
	g.mu.Unlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.points, true
}

func (g *Gateway) writeCache(key cacheKey, points []*domain.MarketPoint) {
	g.mu.Lock()
	g.cache[key] = cacheEntry{points: points, expiresAt: time.Now().Add(g.ttl)}
	g.mu.Unlock()
}

// syntheticSeries deterministically derives a daily OHLCV series from
// symbol and the date range, so the same gap always produces the same
// substitute data. Seeded from a simple string hash rather than time, so
// repeated runs are reproducible without crypto/rand.
func syntheticSeries(symbol string, start, end time.Time) []*domain.MarketPoint {
	seed := hashSeed(symbol)
	var out []*domain.MarketPoint
	price := 100.0 + float64(seed%50)

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		step := math.Sin(float64(seed)+float64(d.Unix())/86400.0) * 0.5
		price += step
		if price < 1 {
			price = 1
		}
		out = append(out, &domain.MarketPoint{
			Symbol: symbol,
			Date:   d,
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1_000_000,
		})
	}
	return out
}

func hashSeed(s string) int64 {
	var h int64 = 1469598103934665603
	for _, c := range s {
		h ^= int64(c)
		h *= 1099511628211
	}
	if h < 0 {
		h = -h
	}
	return h
}
