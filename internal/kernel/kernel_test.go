package kernel

import (
	"testing"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
)

func mkPoint(day int, closePrice float64) *domain.MarketPoint {
	return &domain.MarketPoint{
		Symbol: "TEST",
		Date:   time.Date(2020, 1, day, 0, 0, 0, 0, time.UTC),
		Open:   closePrice,
		High:   closePrice,
		Low:    closePrice,
		Close:  closePrice,
		Volume: 1000,
	}
}

// noopStrategy never trades; used to isolate Portfolio.Value/statistics
// behavior from strategy decision logic.
type noopStrategy struct{}

func (noopStrategy) Name() string                                    { return "noop" }
func (noopStrategy) OnTick(domain.MarketPoint, *Portfolio)            {}
func (noopStrategy) OnFinish(*Portfolio)                             {}

// buyOnceStrategy buys all cash into the position on the first tick only.
type buyOnceStrategy struct {
	bought bool
}

func (s *buyOnceStrategy) Name() string { return "buyOnce" }
func (s *buyOnceStrategy) OnTick(point domain.MarketPoint, p *Portfolio) {
	if s.bought {
		return
	}
	s.bought = true
	p.Buy(point.Date, point.Close, p.Cash/point.Close)
}
func (s *buyOnceStrategy) OnFinish(*Portfolio) {}

func TestPortfolio_Buy_ClampsToAvailableCash(t *testing.T) {
	p := newPortfolio(1000)
	p.Buy(time.Now(), 100, 20) // would cost 2000, only 1000 available

	if p.Cash != 0 {
		t.Errorf("expected cash fully spent, got %v", p.Cash)
	}
	if p.Shares != 10 {
		t.Errorf("expected 10 shares bought (1000/100), got %v", p.Shares)
	}
	if len(p.TradeLog) != 1 || p.TradeLog[0].Action != "BUY" {
		t.Fatalf("expected one BUY trade logged, got %+v", p.TradeLog)
	}
}

func TestPortfolio_Buy_IgnoresNonPositiveInputs(t *testing.T) {
	p := newPortfolio(1000)
	p.Buy(time.Now(), 0, 10)
	p.Buy(time.Now(), 100, 0)
	p.Buy(time.Now(), -5, 10)

	if p.Cash != 1000 || p.Shares != 0 || len(p.TradeLog) != 0 {
		t.Fatalf("expected no-op on non-positive price/qty, got cash=%v shares=%v log=%v", p.Cash, p.Shares, p.TradeLog)
	}
}

func TestPortfolio_Sell_ClampsToHeldShares(t *testing.T) {
	p := newPortfolio(0)
	p.Shares = 5
	p.Sell(time.Now(), 10, 100) // only 5 shares held

	if p.Shares != 0 {
		t.Errorf("expected all shares liquidated, got %v", p.Shares)
	}
	if p.Cash != 50 {
		t.Errorf("expected cash = 50 (5*10), got %v", p.Cash)
	}
}

func TestPortfolio_Sell_IgnoresNonPositiveInputs(t *testing.T) {
	p := newPortfolio(0)
	p.Shares = 5
	p.Sell(time.Now(), 0, 1)
	p.Sell(time.Now(), 10, 0)

	if p.Shares != 5 || len(p.TradeLog) != 0 {
		t.Fatalf("expected no-op on non-positive price/qty, got shares=%v log=%v", p.Shares, p.TradeLog)
	}
}

func TestPortfolio_Value_IsCashPlusPosition(t *testing.T) {
	p := newPortfolio(500)
	p.Shares = 10
	if got := p.Value(20); got != 700 {
		t.Errorf("Value(20) = %v, want 700", got)
	}
}

func TestRun_EmptySeriesReturnsErrEmptySeries(t *testing.T) {
	_, err := Run(Config{Strategy: noopStrategy{}, Series: nil, InitialCapital: 1000})
	if err != ErrEmptySeries {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestRun_NoopStrategyPreservesCapital(t *testing.T) {
	series := []*domain.MarketPoint{mkPoint(1, 100), mkPoint(2, 110), mkPoint(3, 90)}
	res, err := Run(Config{Strategy: noopStrategy{}, Series: series, InitialCapital: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalReturn != 0 {
		t.Errorf("expected zero return for a never-trading strategy, got %v", res.TotalReturn)
	}
	if len(res.TradeLog) != 0 {
		t.Errorf("expected empty trade log, got %v", res.TradeLog)
	}
}

func TestRun_DeterministicGivenIdenticalInputs(t *testing.T) {
	series := []*domain.MarketPoint{mkPoint(1, 100), mkPoint(2, 105), mkPoint(3, 95), mkPoint(4, 120)}

	r1, err := Run(Config{Strategy: &buyOnceStrategy{}, Series: series, InitialCapital: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := Run(Config{Strategy: &buyOnceStrategy{}, Series: series, InitialCapital: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r1.TotalReturn != r2.TotalReturn || r1.SharpeRatio != r2.SharpeRatio || r1.MaxDrawdown != r2.MaxDrawdown {
		t.Fatalf("expected deterministic results for identical inputs, got %+v vs %+v", r1, r2)
	}
}

func TestRun_BuyOnceGrowthMatchesExpectedReturn(t *testing.T) {
	series := []*domain.MarketPoint{mkPoint(1, 100), mkPoint(2, 150)}
	res, err := Run(Config{Strategy: &buyOnceStrategy{}, Series: series, InitialCapital: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Buys 10 shares at 100 on tick 1, price rises to 150: value = 1500.
	want := 0.5
	if diff := res.TotalReturn - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalReturn = %v, want %v", res.TotalReturn, want)
	}
}

func TestComputeMaxDrawdown_TracksPeakToTroughDecline(t *testing.T) {
	equity := []float64{100, 120, 80, 90, 150, 60}
	got := computeMaxDrawdown(equity)
	// Peak 120 -> trough 80: drawdown (120-80)/120 = 0.3333...
	// Peak 150 -> trough 60: drawdown (150-60)/150 = 0.6
	want := (150.0 - 60.0) / 150.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("computeMaxDrawdown = %v, want %v", got, want)
	}
}

func TestComputeMaxDrawdown_MonotonicIncreaseIsZero(t *testing.T) {
	equity := []float64{100, 110, 120, 130}
	if got := computeMaxDrawdown(equity); got != 0 {
		t.Errorf("expected zero drawdown for monotonically increasing equity, got %v", got)
	}
}
