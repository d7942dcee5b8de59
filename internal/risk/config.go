// Package risk implements the paper trader's risk policy: position sizing,
// hybrid stop-loss placement, scaled take-profit ladders, trailing-stop
// ratchets, and the daily/account admission gates consulted before every
// trade open.
package risk

import "papertraderv1/internal/model"

// Conversion constants used by sizing and reporting. The account balance is
// held in INR while BTCUSDT prices quote in USD, so sizing converts through
// an approximate BTC reference price and a fixed USDT/INR rate.
const (
	ReferenceBTCPriceUSD = 97000.0
	USDTINRRate          = 85.0
)

// Stop-loss modes.
const (
	StopModeHybrid     = "hybrid"
	StopModeATR        = "atr"
	StopModePercentage = "percentage"
	StopModeIndicator  = "utbot"
)

// Position sizing methods.
const (
	SizingFixed      = "fixed"
	SizingPercentage = "percentage"
	SizingRiskBased  = "risk_based"
)

// StopLossConfig controls stop placement and the trailing ratchet.
type StopLossConfig struct {
	Enabled               bool    `json:"enabled"`
	Type                  string  `json:"type"`
	ATRMultiplier         float64 `json:"atr_multiplier"`
	MaxLossPercentage     float64 `json:"max_loss_percentage"`
	TrailingEnabled       bool    `json:"trailing_enabled"`
	TrailingATRMultiplier float64 `json:"trailing_atr_multiplier"`
}

// TPLevelConfig is one rung of the take-profit ladder.
type TPLevelConfig struct {
	Percentage    float64 `json:"percentage"`
	ATRMultiplier float64 `json:"atr_multiplier"`
	Name          string  `json:"name"`
}

// TakeProfitConfig defines the exit ladder.
type TakeProfitConfig struct {
	Enabled bool            `json:"enabled"`
	Type    string          `json:"type"`
	Levels  []TPLevelConfig `json:"levels"`
}

// PositionSizingConfig controls trade size derivation.
type PositionSizingConfig struct {
	Method          string  `json:"method"`
	Value           float64 `json:"value"`
	MinPositionSize float64 `json:"min_position_size"`
	MaxPositionSize float64 `json:"max_position_size"`
}

// DailyLimitsConfig caps per-day exposure.
type DailyLimitsConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	ResetHour            int     `json:"reset_hour"`
}

// AccountProtectionConfig holds account-level circuit breakers.
type AccountProtectionConfig struct {
	MaxDrawdownPercentage float64 `json:"max_drawdown_percentage"`
	MinBalance            float64 `json:"min_balance"`
	EmergencyStop         bool    `json:"emergency_stop"`
}

// SideOverride carries per-side take-profit multipliers.
type SideOverride struct {
	TPATRMultipliers []float64 `json:"tp_atr_multipliers"`
}

// SideRulesConfig enables different TP ladders for long vs short positions.
type SideRulesConfig struct {
	Enabled bool         `json:"enabled"`
	Long    SideOverride `json:"long"`
	Short   SideOverride `json:"short"`
}

// Config is the full user-editable risk policy document. It is persisted
// whole and read whole; the engine never writes individual fields.
type Config struct {
	StopLoss          StopLossConfig          `json:"stop_loss"`
	TakeProfit        TakeProfitConfig        `json:"take_profit"`
	PositionSizing    PositionSizingConfig    `json:"position_sizing"`
	DailyLimits       DailyLimitsConfig       `json:"daily_limits"`
	AccountProtection AccountProtectionConfig `json:"account_protection"`
	SideRules         SideRulesConfig         `json:"different_rules_for_position_type"`
}

// DefaultConfig returns the shipped risk policy. Saved to the config store
// on first run so users can edit it from the dashboard.
func DefaultConfig() Config {
	return Config{
		StopLoss: StopLossConfig{
			Enabled:               true,
			Type:                  StopModeHybrid,
			ATRMultiplier:         2.0,
			MaxLossPercentage:     3.0,
			TrailingEnabled:       true,
			TrailingATRMultiplier: 1.5,
		},
		TakeProfit: TakeProfitConfig{
			Enabled: true,
			Type:    "scaled_atr",
			Levels: []TPLevelConfig{
				{Percentage: 50, ATRMultiplier: 2.5, Name: "TP1"},
				{Percentage: 30, ATRMultiplier: 5.0, Name: "TP2"},
				{Percentage: 20, ATRMultiplier: 7.5, Name: "TP3"},
			},
		},
		PositionSizing: PositionSizingConfig{
			Method:          SizingPercentage,
			Value:           5.0,
			MinPositionSize: 0.0001,
			MaxPositionSize: 0.01,
		},
		DailyLimits: DailyLimitsConfig{
			Enabled:              true,
			MaxDailyLoss:         1000.0,
			MaxDailyTrades:       20,
			MaxConsecutiveLosses: 5,
			ResetHour:            0,
		},
		AccountProtection: AccountProtectionConfig{
			MaxDrawdownPercentage: 20.0,
			MinBalance:            5000.0,
			EmergencyStop:         false,
		},
		SideRules: SideRulesConfig{
			Enabled: true,
			Long:    SideOverride{TPATRMultipliers: []float64{3.0, 6.0, 9.0}},
			Short:   SideOverride{TPATRMultipliers: []float64{2.0, 4.0, 6.0}},
		},
	}
}

// sideMultipliers returns the TP multipliers for the given side when
// per-side overrides are enabled.
func (c Config) sideMultipliers(side model.Side) []float64 {
	if side == model.SideLong {
		return c.SideRules.Long.TPATRMultipliers
	}
	return c.SideRules.Short.TPATRMultipliers
}
