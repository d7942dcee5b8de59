package indicator

import (
	"math"

	"papertraderv1/internal/model"
)

// Snapshot is the indicator engine's per-tick output, fed into the trade
// engine together with the risk policy.
type Snapshot struct {
	Signal   model.SignalType `json:"signal"`
	Price    float64          `json:"price"`
	ATR      float64          `json:"atr"`       // ATRPeriod value, 0 when unavailable
	StopLine float64          `json:"stop_line"` // indicator stop of the run that fired, 0 when unavailable
}

// Strategy labels recorded on opened positions, identifying which
// parameterization produced the entry.
const (
	StrategyLabelSlow = "UT Bot #2 (KV=2, ATR=300)"
	StrategyLabelFast = "UT Bot #1 (KV=2, ATR=1)"
)

// ComputeSignal combines the fast and slow trailing-stop runs into one
// directional signal.
//
// The slow run's Long regime produces a Buy; the fast run's Short regime
// produces a Sell and is evaluated second, so Sell wins when both fire on the
// same bar. An empty window fails soft with SignalNoData and zeroed fields;
// callers must not trade on it.
func ComputeSignal(candles []model.Candle) Snapshot {
	if len(candles) == 0 {
		return Snapshot{Signal: model.SignalNoData}
	}

	fastStops, fastRegimes := ComputeTrailingStop(candles, FastSensitivity, FastPeriod)
	slowStops, slowRegimes := ComputeTrailingStop(candles, SlowSensitivity, SlowPeriod)

	last := len(candles) - 1
	price := candles[last].Close

	snap := Snapshot{
		Signal:   model.SignalHold,
		Price:    price,
		StopLine: price,
	}

	if slowRegimes[last] == RegimeLong {
		snap.Signal = model.SignalBuy
		snap.StopLine = slowStops[last]
	}
	if fastRegimes[last] == RegimeShort {
		snap.Signal = model.SignalSell
		snap.StopLine = fastStops[last]
	}

	// The slow stop can still be inside its volatility warm-up while the
	// regime has already flipped; an undefined stop line is reported as 0
	// ("unavailable") so the risk policy falls back to its other candidates
	// and JSON encoding stays valid.
	if math.IsNaN(snap.StopLine) {
		snap.StopLine = 0
	}

	if atr, ok := ATR(candles, ATRPeriod); ok {
		snap.ATR = atr
	}

	return snap
}
