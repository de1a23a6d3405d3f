package strategies

import (
	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel"
)

// buyAndHold invests all available cash into the position on the first
// tick and never trades again.
type buyAndHold struct {
	bought bool
}

func newBuyAndHold(params map[string]any) (kernel.Strategy, error) {
	return &buyAndHold{}, nil
}

func (s *buyAndHold) Name() string { return "BuyAndHold" }

func (s *buyAndHold) OnTick(point domain.MarketPoint, p *kernel.Portfolio) {
	if s.bought || point.Close <= 0 {
		return
	}
	qty := p.Cash / point.Close
	p.Buy(point.Date, point.Close, qty)
	s.bought = true
}

func (s *buyAndHold) OnFinish(p *kernel.Portfolio) {}
