package risk

import (
	"fmt"
	"time"

	"papertraderv1/internal/model"
)

// Document names under which the policy and its daily counters persist.
const (
	ConfigDocName = "risk_config"
	StateDocName  = "risk_state"
)

// State holds the daily rolling counters consulted by the admission gates.
// Counters reset when the wall clock crosses the configured reset hour;
// PeakBalance is carried across resets so drawdown protection keeps its
// reference high-water mark.
type State struct {
	DailyLoss         float64   `json:"daily_loss"`
	DailyProfit       float64   `json:"daily_profit"`
	DailyTrades       int       `json:"daily_trades"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	LastReset         time.Time `json:"last_reset"`
	PeakBalance       float64   `json:"peak_balance"`
}

// DailyStats is the human-readable usage block returned by Status.
type DailyStats struct {
	Trades            string `json:"trades"`
	Loss              string `json:"loss"`
	Profit            string `json:"profit"`
	ConsecutiveLosses string `json:"consecutive_losses"`
}

// LimitsUsage reports limit consumption as percentages for dashboard gauges.
type LimitsUsage struct {
	TradesPct float64 `json:"trades_pct"`
	LossPct   float64 `json:"loss_pct"`
}

// Status is the full risk snapshot served to the dashboard.
type Status struct {
	DailyStats  DailyStats  `json:"daily_stats"`
	LimitsUsage LimitsUsage `json:"limits_usage"`
	Config      Config      `json:"config"`
}

// Manager owns the persisted risk config and daily state. All loads pass
// through the daily-reset check, so callers always see current-day counters.
type Manager struct {
	store model.DocumentStore
	now   func() time.Time
}

// NewManager builds a manager over the given document store.
func NewManager(store model.DocumentStore) *Manager {
	return &Manager{store: store, now: time.Now}
}

// SetClock overrides the wall clock, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Config loads the risk policy, seeding the store with DefaultConfig on
// first run.
func (m *Manager) Config() (Config, error) {
	var cfg Config
	found, err := m.store.Load(ConfigDocName, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load risk config: %w", err)
	}
	if !found {
		cfg = DefaultConfig()
		if err := m.store.Save(ConfigDocName, cfg); err != nil {
			return Config{}, fmt.Errorf("seed risk config: %w", err)
		}
	}
	return cfg, nil
}

// SaveConfig replaces the persisted policy document.
func (m *Manager) SaveConfig(cfg Config) error {
	return m.store.Save(ConfigDocName, cfg)
}

// LoadState returns the current daily counters, resetting them first if the
// reset boundary has been crossed since they were last written.
func (m *Manager) LoadState() (State, error) {
	var st State
	found, err := m.store.Load(StateDocName, &st)
	if err != nil {
		return State{}, fmt.Errorf("load risk state: %w", err)
	}
	if !found {
		st = m.freshState(0)
		if err := m.saveState(st); err != nil {
			return State{}, err
		}
		return st, nil
	}

	cfg, err := m.Config()
	if err != nil {
		return State{}, err
	}
	if m.needsReset(st, cfg.DailyLimits.ResetHour) {
		st = m.freshState(st.PeakBalance)
		if err := m.saveState(st); err != nil {
			return State{}, err
		}
	}
	return st, nil
}

// needsReset reports whether the counters belong to a previous trading day:
// either the calendar date advanced, or the clock crossed the reset hour
// within the same date.
func (m *Manager) needsReset(st State, resetHour int) bool {
	now := m.now()
	last := st.LastReset.In(now.Location())

	ny, nm, nd := now.Date()
	ly, lm, ld := last.Date()
	nowDate := time.Date(ny, nm, nd, 0, 0, 0, 0, now.Location())
	lastDate := time.Date(ly, lm, ld, 0, 0, 0, 0, now.Location())
	if nowDate.After(lastDate) {
		return true
	}
	return nowDate.Equal(lastDate) && now.Hour() >= resetHour && last.Hour() < resetHour
}

func (m *Manager) freshState(peakBalance float64) State {
	return State{LastReset: m.now(), PeakBalance: peakBalance}
}

func (m *Manager) saveState(st State) error {
	if err := m.store.Save(StateDocName, st); err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}

// CheckDailyLimits evaluates the per-day caps. The first violated cap wins.
func CheckDailyLimits(st State, cfg Config) (bool, string) {
	limits := cfg.DailyLimits
	if !limits.Enabled {
		return true, ""
	}
	if st.DailyLoss >= limits.MaxDailyLoss {
		return false, fmt.Sprintf("Daily loss limit reached (₹%.2f / ₹%.2f)", st.DailyLoss, limits.MaxDailyLoss)
	}
	if st.DailyTrades >= limits.MaxDailyTrades {
		return false, fmt.Sprintf("Daily trade limit reached (%d / %d)", st.DailyTrades, limits.MaxDailyTrades)
	}
	if st.ConsecutiveLosses >= limits.MaxConsecutiveLosses {
		return false, fmt.Sprintf("Max consecutive losses reached (%d)", st.ConsecutiveLosses)
	}
	return true, ""
}

// CheckAccountProtection evaluates the account circuit breakers against the
// current balance. As a side effect a new balance high is recorded as the
// peak, so drawdown is always measured from the highest balance seen.
func (m *Manager) CheckAccountProtection(balance float64, st *State, cfg Config) (bool, string, error) {
	protection := cfg.AccountProtection

	if protection.EmergencyStop {
		return false, "Emergency stop activated", nil
	}
	if balance < protection.MinBalance {
		return false, fmt.Sprintf("Balance below minimum (₹%.2f < ₹%.2f)", balance, protection.MinBalance), nil
	}
	if st.PeakBalance > 0 {
		drawdownPct := (st.PeakBalance - balance) / st.PeakBalance * 100
		if drawdownPct >= protection.MaxDrawdownPercentage {
			return false, fmt.Sprintf("Max drawdown exceeded (%.2f%% >= %.1f%%)", drawdownPct, protection.MaxDrawdownPercentage), nil
		}
	}
	if balance > st.PeakBalance {
		st.PeakBalance = balance
		if err := m.saveState(*st); err != nil {
			return false, "", err
		}
	}
	return true, "", nil
}

// CanOpenTrade runs the full admission gate: daily limits first, then
// account protection. The first failing check short-circuits.
func (m *Manager) CanOpenTrade(balance float64) (bool, string, error) {
	cfg, err := m.Config()
	if err != nil {
		return false, "", err
	}
	st, err := m.LoadState()
	if err != nil {
		return false, "", err
	}

	if ok, reason := CheckDailyLimits(st, cfg); !ok {
		return false, reason, nil
	}
	return m.CheckAccountProtection(balance, &st, cfg)
}

// RecordTradeResult folds a closed trade's INR profit into the daily
// counters. The trade count always increments; losses extend the
// consecutive-loss streak, wins reset it.
func (m *Manager) RecordTradeResult(profitLoss float64) error {
	st, err := m.LoadState()
	if err != nil {
		return err
	}

	st.DailyTrades++
	if profitLoss < 0 {
		st.DailyLoss += -profitLoss
		st.ConsecutiveLosses++
	} else {
		st.DailyProfit += profitLoss
		st.ConsecutiveLosses = 0
	}
	return m.saveState(st)
}

// Status assembles the dashboard risk snapshot.
func (m *Manager) Status() (Status, error) {
	cfg, err := m.Config()
	if err != nil {
		return Status{}, err
	}
	st, err := m.LoadState()
	if err != nil {
		return Status{}, err
	}

	limits := cfg.DailyLimits
	out := Status{
		DailyStats: DailyStats{
			Trades:            fmt.Sprintf("%d/%d", st.DailyTrades, limits.MaxDailyTrades),
			Loss:              fmt.Sprintf("₹%.2f/₹%.2f", st.DailyLoss, limits.MaxDailyLoss),
			Profit:            fmt.Sprintf("₹%.2f", st.DailyProfit),
			ConsecutiveLosses: fmt.Sprintf("%d/%d", st.ConsecutiveLosses, limits.MaxConsecutiveLosses),
		},
		Config: cfg,
	}
	if limits.MaxDailyTrades > 0 {
		out.LimitsUsage.TradesPct = float64(st.DailyTrades) / float64(limits.MaxDailyTrades) * 100
	}
	if limits.MaxDailyLoss > 0 {
		out.LimitsUsage.LossPct = st.DailyLoss / limits.MaxDailyLoss * 100
	}
	return out, nil
}
