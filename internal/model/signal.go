package model

// SignalType is the directional signal emitted by the indicator engine.
type SignalType string

const (
	SignalBuy    SignalType = "Buy"
	SignalSell   SignalType = "Sell"
	SignalHold   SignalType = "Hold"
	SignalNoData SignalType = "No Data" // candle fetch failed; callers must not trade
)

// Side represents the direction of an open position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// ActionTag classifies what the trade engine did on a tick.
// Exactly one order-log entry carries exactly one tag per tick.
type ActionTag string

const (
	ActionHold         ActionTag = "HOLD"
	ActionIgnored      ActionTag = "IGNORED"
	ActionBlocked      ActionTag = "BLOCKED"
	ActionOpenLong     ActionTag = "OPEN_LONG"
	ActionOpenShort    ActionTag = "OPEN_SHORT"
	ActionCloseLong    ActionTag = "CLOSE_LONG"
	ActionCloseShort   ActionTag = "CLOSE_SHORT"
	ActionStopLoss     ActionTag = "STOP_LOSS"
	ActionTP1FullExit  ActionTag = "TP1_FULL_EXIT"
	ActionTrailingStop ActionTag = "TRAILING_STOP_UPDATE"
	ActionForceClose   ActionTag = "FORCE_CLOSE"
)

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss       = "Stop-Loss Hit"
	ExitTP1FullExit    = "TP1 Hit - Full Exit"
	ExitOppositeSignal = "Opposite Signal"
	ExitForceClose     = "Force Close"
)
