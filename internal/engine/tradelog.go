package engine

import (
	"encoding/json"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel"
)

// marshalTradeLog serializes a kernel trade log into the opaque bytes blob
// the Job Store persists. The orchestration core never interprets the
// contents beyond storing and returning them.
func marshalTradeLog(trades []kernel.Trade) ([]byte, error) {
	return json.Marshal(trades)
}
