package risk

import (
	"fmt"

	"papertraderv1/internal/model"
)

// PositionSize derives the trade size in BTC from the configured sizing
// method, clamped to the configured min/max and rounded to 6 decimals.
// Percentage sizing spends value% of the INR balance at the reference
// BTC price.
func PositionSize(balance float64, cfg Config) float64 {
	var size float64
	switch cfg.PositionSizing.Method {
	case SizingFixed:
		size = cfg.PositionSizing.Value
	case SizingPercentage:
		btcPriceINR := ReferenceBTCPriceUSD * USDTINRRate
		positionValueINR := balance * (cfg.PositionSizing.Value / 100)
		size = positionValueINR / btcPriceINR
	default: // risk_based
		size = cfg.PositionSizing.Value
	}

	if size < cfg.PositionSizing.MinPositionSize {
		size = cfg.PositionSizing.MinPositionSize
	}
	if size > cfg.PositionSizing.MaxPositionSize {
		size = cfg.PositionSizing.MaxPositionSize
	}
	return model.Round6(size)
}

// StopLoss computes the initial stop for a new position. indicatorStop is
// the trailing-stop line from the signal run, 0 when unavailable.
//
// Hybrid mode takes the tighter of the ATR stop and the fixed-percentage
// stop, then tightens again against the indicator line when one exists, so
// the result is never looser than any candidate. Returns ok=false when
// stops are disabled.
func StopLoss(entryPrice float64, side model.Side, atr, indicatorStop float64, cfg Config) (float64, bool) {
	sl := cfg.StopLoss
	if !sl.Enabled {
		return 0, false
	}

	var stop float64
	if side == model.SideLong {
		slATR := entryPrice - atr*sl.ATRMultiplier
		slFixed := entryPrice * (1 - sl.MaxLossPercentage/100)

		switch sl.Type {
		case StopModeHybrid:
			candidate := max2(slATR, slFixed)
			if indicatorStop != 0 {
				stop = max2(candidate, indicatorStop)
			} else {
				stop = candidate
			}
		case StopModeATR:
			stop = slATR
		case StopModeIndicator:
			if indicatorStop != 0 {
				stop = indicatorStop
			} else {
				stop = slFixed
			}
		default:
			stop = slFixed
		}
	} else {
		slATR := entryPrice + atr*sl.ATRMultiplier
		slFixed := entryPrice * (1 + sl.MaxLossPercentage/100)

		switch sl.Type {
		case StopModeHybrid:
			candidate := min2(slATR, slFixed)
			if indicatorStop != 0 {
				stop = min2(candidate, indicatorStop)
			} else {
				stop = candidate
			}
		case StopModeATR:
			stop = slATR
		case StopModeIndicator:
			if indicatorStop != 0 {
				stop = indicatorStop
			} else {
				stop = slFixed
			}
		default:
			stop = slFixed
		}
	}
	return model.Round2(stop), true
}

// TakeProfitLevels builds the TP ladder for a new position, nearest level
// first. With per-side overrides enabled the side's multiplier list drives
// the ladder; percentage and name come positionally from the configured
// levels, falling back to an even split and a synthetic name past the end.
func TakeProfitLevels(entryPrice float64, side model.Side, atr float64, cfg Config) []model.TPLevel {
	if !cfg.TakeProfit.Enabled {
		return nil
	}

	var levels []model.TPLevel
	if cfg.SideRules.Enabled {
		mults := cfg.sideMultipliers(side)
		for i, mult := range mults {
			var price float64
			if side == model.SideLong {
				price = entryPrice + atr*mult
			} else {
				price = entryPrice - atr*mult
			}
			var pct float64
			var name string
			if i < len(cfg.TakeProfit.Levels) {
				pct = cfg.TakeProfit.Levels[i].Percentage
				name = cfg.TakeProfit.Levels[i].Name
			} else {
				pct = float64(100 / len(mults))
				name = fmt.Sprintf("TP%d", i+1)
			}
			levels = append(levels, model.TPLevel{
				Price:      model.Round2(price),
				Percentage: pct,
				Name:       name,
			})
		}
		return levels
	}

	for _, lvl := range cfg.TakeProfit.Levels {
		var price float64
		if side == model.SideLong {
			price = entryPrice + atr*lvl.ATRMultiplier
		} else {
			price = entryPrice - atr*lvl.ATRMultiplier
		}
		levels = append(levels, model.TPLevel{
			Price:      model.Round2(price),
			Percentage: lvl.Percentage,
			Name:       lvl.Name,
		})
	}
	return levels
}

// TrailingStopUpdate proposes a new stop trailing the current price by
// trailing_atr_multiplier ATRs. Returns ok=false when trailing is disabled
// or the candidate would loosen the existing stop; the stop only ever
// tightens.
func TrailingStopUpdate(currentPrice float64, side model.Side, currentStop, atr float64, cfg Config) (float64, bool) {
	if !cfg.StopLoss.TrailingEnabled {
		return 0, false
	}

	distance := atr * cfg.StopLoss.TrailingATRMultiplier
	if side == model.SideLong {
		candidate := currentPrice - distance
		if candidate > currentStop {
			return model.Round2(candidate), true
		}
	} else {
		candidate := currentPrice + distance
		if candidate < currentStop {
			return model.Round2(candidate), true
		}
	}
	return 0, false
}

// BreakevenStop returns the entry price padded by a 0.1% fee buffer, in
// the direction that keeps the trade at worst flat after costs.
func BreakevenStop(entryPrice float64, side model.Side) float64 {
	const buffer = 0.001
	if side == model.SideLong {
		return model.Round2(entryPrice * (1 + buffer))
	}
	return model.Round2(entryPrice * (1 - buffer))
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
