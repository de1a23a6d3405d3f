// Package report renders a PNG chart from a completed job's trade log.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// tradeEvent mirrors kernel.Trade's JSON shape without importing the kernel
// package — the report renderer only ever sees the opaque trade-log bytes
// the Job Store persists.
type tradeEvent struct {
	Date   time.Time `json:"date"`
	Action string    `json:"action"`
	Price  float64   `json:"price"`
	Shares float64   `json:"shares"`
}

// ErrInsufficientTrades is returned when fewer than two trade events exist
// to plot a line.
var ErrInsufficientTrades = fmt.Errorf("need at least 2 trade events to render a chart")

// RenderTradeChart renders a PNG line chart of executed trade prices over
// time from a job's opaque, JSON-encoded trade log.
func RenderTradeChart(tradeLog []byte) ([]byte, error) {
	var trades []tradeEvent
	if err := json.Unmarshal(tradeLog, &trades); err != nil {
		return nil, fmt.Errorf("trade log decode failed: %w", err)
	}
	if len(trades) < 2 {
		return nil, ErrInsufficientTrades
	}

	xValues := make([]time.Time, len(trades))
	priceY := make([]float64, len(trades))
	var buyX, sellX []time.Time
	var buyY, sellY []float64

	for i, t := range trades {
		xValues[i] = t.Date
		priceY[i] = t.Price
		switch t.Action {
		case "BUY":
			buyX = append(buyX, t.Date)
			buyY = append(buyY, t.Price)
		case "SELL":
			sellX = append(sellX, t.Date)
			sellY = append(sellY, t.Price)
		}
	}

	span := xValues[len(xValues)-1].Sub(xValues[0])
	xFormat := "Jan 06"
	if span < 60*24*time.Hour {
		xFormat = "02 Jan"
	} else if span > 18*30*24*time.Hour {
		xFormat = "Jan 2006"
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name: "Execution price",
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("2563eb"),
				StrokeWidth: 1.5,
			},
			XValues: xValues,
			YValues: priceY,
		},
	}
	if len(buyX) > 0 {
		series = append(series, chart.TimeSeries{
			Name: "Buy",
			Style: chart.Style{
				StrokeWidth:     0,
				DotWidth:        4,
				DotColor:        drawing.ColorFromHex("16a34a"),
			},
			XValues: buyX,
			YValues: buyY,
		})
	}
	if len(sellX) > 0 {
		series = append(series, chart.TimeSeries{
			Name: "Sell",
			Style: chart.Style{
				StrokeWidth: 0,
				DotWidth:    4,
				DotColor:    drawing.ColorFromHex("dc2626"),
			},
			XValues: sellX,
			YValues: sellY,
		})
	}

	graph := chart.Chart{
		Title:  "Backtest trade execution",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return chart.TimeFromFloat64(f).Format(xFormat)
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.2f", f)
				}
				return ""
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
