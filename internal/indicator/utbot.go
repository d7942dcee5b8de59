// Package indicator computes the UT Bot trailing-stop indicator and the
// combined directional signal over a candle window.
//
// The computation is a pure left-to-right scan: the stop for bar i depends on
// the stop and regime of bar i-1, so the whole window is recomputed from
// scratch on every tick rather than updated incrementally.
package indicator

import (
	"math"

	"papertraderv1/internal/model"
)

// Regime is the directional bias inferred from price crossing the trailing stop.
type Regime int

const (
	RegimeFlat  Regime = 0
	RegimeLong  Regime = 1
	RegimeShort Regime = -1
)

// The two fixed parameterizations combined into one signal: the fast run
// detects shorts, the slow run detects longs.
const (
	FastSensitivity = 2.0
	FastPeriod      = 1
	SlowSensitivity = 2.0
	SlowPeriod      = 300

	// ATRPeriod is the smoothing window for the stable volatility value
	// handed to risk management.
	ATRPeriod = 14
)

// rangeSMA returns the simple moving average of the per-bar high-low range
// over a trailing window. Values are NaN until `period` bars are available,
// mirroring a rolling-mean warm-up.
func rangeSMA(candles []model.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	var sum float64
	for i := range candles {
		sum += candles[i].Range()
		if i >= period {
			sum -= candles[i-period].Range()
		}
		if i+1 < period {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// keepMax returns cand if it is greater than base, else base. Unlike
// math.Max it keeps base when cand is NaN, so the stop carries through the
// volatility warm-up instead of being poisoned by an undefined loss distance.
func keepMax(base, cand float64) float64 {
	if cand > base {
		return cand
	}
	return base
}

// keepMin is the short-side counterpart of keepMax.
func keepMin(base, cand float64) float64 {
	if cand < base {
		return cand
	}
	return base
}

// ComputeTrailingStop runs the trailing-stop recurrence over the window and
// returns the stop and regime series, one value per candle.
//
// Seed: stop[0] = close[0], regime[0] = Flat. For i >= 1 with previous stop S,
// current close C and previous close C1, loss = sensitivity * rangeSMA[i]:
//
//   - C > S and C1 > S: stop ratchets up, never down (long mode)
//   - C < S and C1 < S: stop ratchets down, never up (short mode)
//   - otherwise the stop re-seeds on the side price is on
//
// The regime flips Long on an upward crossing (C1 < S and C > S), Short on a
// downward crossing, and carries forward otherwise.
func ComputeTrailingStop(candles []model.Candle, sensitivity float64, period int) ([]float64, []Regime) {
	n := len(candles)
	if n == 0 {
		return nil, nil
	}

	atr := rangeSMA(candles, period)
	stops := make([]float64, n)
	regimes := make([]Regime, n)

	stops[0] = candles[0].Close
	regimes[0] = RegimeFlat

	for i := 1; i < n; i++ {
		prevStop := stops[i-1]
		src := candles[i].Close
		src1 := candles[i-1].Close
		loss := sensitivity * atr[i]

		switch {
		case src > prevStop && src1 > prevStop:
			stops[i] = keepMax(prevStop, src-loss)
		case src < prevStop && src1 < prevStop:
			stops[i] = keepMin(prevStop, src+loss)
		case src > prevStop:
			stops[i] = src - loss
		default:
			stops[i] = src + loss
		}

		switch {
		case src1 < prevStop && src > prevStop:
			regimes[i] = RegimeLong
		case src1 > prevStop && src < prevStop:
			regimes[i] = RegimeShort
		default:
			regimes[i] = regimes[i-1]
		}
	}

	return stops, regimes
}

// ATR returns the latest `period`-bar average of the high-low range.
// ok is false while the window holds fewer than `period` bars.
func ATR(candles []model.Candle, period int) (float64, bool) {
	if len(candles) < period || period <= 0 {
		return 0, false
	}
	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Range()
	}
	return sum / float64(period), true
}
