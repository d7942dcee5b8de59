package model

import (
	"encoding/json"
	"math"
	"time"
)

// TPLevel is one rung of the take-profit ladder, ordered by distance from entry.
type TPLevel struct {
	Price      float64 `json:"price"`
	Percentage float64 `json:"percentage"` // share of the position to exit at this level
	Name       string  `json:"name"`       // "TP1", "TP2", ...
	Hit        bool    `json:"hit"`
}

// Position is the single open-position slot. At most one instance is live at
// any time. Only StopLoss and BreakevenMoved are mutated in place; everything
// else is fixed at entry.
type Position struct {
	Side           Side      `json:"side"`
	EntryPrice     float64   `json:"entry_price"`
	Size           float64   `json:"size"`          // BTC quantity
	OriginalSize   float64   `json:"original_size"` // equals Size; exits are always full
	StopLoss       float64   `json:"stop_loss"`
	TP1Price       float64   `json:"tp1_price"` // active target: nearest ladder level
	TPLevels       []TPLevel `json:"tp_levels"` // kept for display
	OpenedAt       time.Time `json:"opened_at"`
	Strategy       string    `json:"strategy"` // originating parameterization label
	ATRAtEntry     float64   `json:"atr_at_entry"`
	BreakevenMoved bool      `json:"breakeven_moved"`
}

// ClosedTrade is an append-only history record of one full position close.
// Invariant: BalanceAfter == BalanceBefore + ProfitINR (after 2-decimal rounding).
type ClosedTrade struct {
	Side          Side      `json:"side"`
	EntryPrice    float64   `json:"entry_price"`
	ExitPrice     float64   `json:"exit_price"`
	Size          float64   `json:"size"`
	ProfitUSDT    float64   `json:"profit_usdt"`
	ProfitINR     float64   `json:"profit_inr"`
	BalanceBefore float64   `json:"balance_before"`
	BalanceAfter  float64   `json:"balance_after"`
	ClosedAt      time.Time `json:"closed_at"`
	ExitReason    string    `json:"exit_reason"`
	Partial       bool      `json:"partial"` // always false: TP1 is a full exit
}

// OrderLogEntry is the per-tick audit record. Every tick appends exactly one,
// Hold and Blocked ticks included. Optional fields are nil when the action
// didn't produce them.
type OrderLogEntry struct {
	Time     time.Time `json:"time"`
	Side     string    `json:"side"` // tick signal label, or "CLOSE" for force closes
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Action   ActionTag `json:"action"`
	PLinr    *float64  `json:"pl_inr,omitempty"`
	StopLoss *float64  `json:"stop_loss,omitempty"`
	TP1      *float64  `json:"tp1,omitempty"`
}

// TradeDocument is the whole persisted trading state: read-whole and
// written-whole on every tick (single-writer, last-writer-wins).
type TradeDocument struct {
	Balance      float64         `json:"balance"`
	OpenPosition *Position       `json:"open_position"`
	History      []ClosedTrade   `json:"history"`
	OrderLog     []OrderLogEntry `json:"order_log"`
	LastSignal   SignalType      `json:"last_signal,omitempty"`
}

// JSON returns the JSON-encoded document.
func (d *TradeDocument) JSON() []byte {
	b, _ := json.Marshal(d)
	return b
}

// Round2 rounds to 2 decimal places; used for all monetary outputs.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round6 rounds to 6 decimal places; used for BTC position sizes.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
