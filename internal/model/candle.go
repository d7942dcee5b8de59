package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLC bar for the traded symbol.
// Prices are float64 USD quotes as returned by the exchange REST API;
// BTCUSDT quotes carry fractional cents, so integer minor units don't fit here.
type Candle struct {
	TS     time.Time `json:"ts"` // bucket open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range returns the bar's high-low range, the per-bar true range used by the
// trailing-stop volatility measure.
func (c *Candle) Range() float64 {
	return c.High - c.Low
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the close series from a candle window.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
