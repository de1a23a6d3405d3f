package surreal

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
)

type marketRow struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

func (r marketRow) toDomain() *domain.MarketPoint {
	return &domain.MarketPoint{
		Symbol: r.Symbol,
		Date:   r.Date,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

// marketDataRecordID derives a stable record id from (symbol, date) so
// WriteMarketPoints is a plain upsert rather than a read-then-write.
func marketDataRecordID(symbol string, date time.Time) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("market_data", fmt.Sprintf("%s:%s", symbol, date.UTC().Format("2006-01-02")))
}

// ReadMarketPoints serves the Market-Data Gateway's persisted cache tier,
// queried after the Gateway's in-process TTL cache misses.
func (s *Store) ReadMarketPoints(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketPoint, error) {
	sql := `SELECT symbol, date, open, high, low, close, volume FROM market_data
		WHERE symbol = $symbol AND date >= $start AND date <= $end ORDER BY date ASC`
	vars := map[string]any{"symbol": symbol, "start": start, "end": end}

	rows, err := surrealdb.Query[[]marketRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to read market points for %s: %w", symbol, err)
	}
	if rows == nil || len(*rows) == 0 {
		return nil, nil
	}
	out := make([]*domain.MarketPoint, 0, len((*rows)[0].Result))
	for _, r := range (*rows)[0].Result {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// WriteMarketPoints upserts one record per bar. The unique (symbol, date)
// index defined in New makes a repeated fetch of the same range idempotent.
func (s *Store) WriteMarketPoints(ctx context.Context, points []*domain.MarketPoint) error {
	for _, p := range points {
		sql := `UPSERT $rid SET symbol = $symbol, date = $date, open = $open,
			high = $high, low = $low, close = $close, volume = $volume`
		vars := map[string]any{
			"rid":    marketDataRecordID(p.Symbol, p.Date),
			"symbol": p.Symbol,
			"date":   p.Date,
			"open":   p.Open,
			"high":   p.High,
			"low":    p.Low,
			"close":  p.Close,
			"volume": p.Volume,
		}
		if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
			return fmt.Errorf("failed to write market point %s/%s: %w", p.Symbol, p.Date.Format("2006-01-02"), err)
		}
	}
	return nil
}
