package domain

import "time"

// MarketPoint is a single day's OHLCV bar for a symbol, unique by
// (symbol, date).
type MarketPoint struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
