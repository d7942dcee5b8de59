// Package tradingcontrol decides whether the engine may act on a tick:
// a configurable daily hours window, a manual pause switch, and a force
// start override that bypasses both. The decision is made at the gateway
// boundary; blocked ticks never reach the trade state machine.
package tradingcontrol

import (
	"fmt"
	"time"

	"papertraderv1/internal/model"
)

// StateDocName is the persisted control document's name.
const StateDocName = "trading_state"

// Default trading window.
const (
	DefaultStartHour = 18
	DefaultEndHour   = 23
)

// State is the persisted control document.
type State struct {
	Enabled     bool `json:"enabled"`
	StartHour   int  `json:"start_hour"`
	EndHour     int  `json:"end_hour"`
	ManualPause bool `json:"manual_pause"`
	ForceStart  bool `json:"force_start"`
}

// Actions accepted by Apply.
const (
	ActionPause      = "pause"
	ActionResume     = "resume"
	ActionForceStart = "force_start"
	ActionForceStop  = "force_stop"
)

// Controller owns the persisted control state.
type Controller struct {
	store model.DocumentStore
	now   func() time.Time
}

// New builds a controller over the given document store.
func New(store model.DocumentStore) *Controller {
	return &Controller{store: store, now: time.Now}
}

// SetClock overrides the wall clock, for tests.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

func defaultState() State {
	return State{
		Enabled:   true,
		StartHour: DefaultStartHour,
		EndHour:   DefaultEndHour,
	}
}

// State loads the control document, seeding the default window on first run.
func (c *Controller) State() (State, error) {
	var st State
	found, err := c.store.Load(StateDocName, &st)
	if err != nil {
		return State{}, fmt.Errorf("load trading state: %w", err)
	}
	if !found {
		st = defaultState()
		if err := c.store.Save(StateDocName, st); err != nil {
			return State{}, fmt.Errorf("seed trading state: %w", err)
		}
	}
	return st, nil
}

// withinHours reports whether t's hour falls inside the configured window.
// A disabled window means always-on.
func withinHours(st State, t time.Time) bool {
	if st.ForceStart || !st.Enabled {
		return true
	}
	h := t.Hour()
	return st.StartHour <= h && h < st.EndHour
}

// Allowed reports whether trading may proceed now, with a reason when not.
// Force start overrides everything, including a manual pause.
func (c *Controller) Allowed() (bool, string, error) {
	st, err := c.State()
	if err != nil {
		return false, "", err
	}
	if st.ForceStart {
		return true, "", nil
	}
	if st.ManualPause {
		return false, "Trading manually paused", nil
	}
	if !withinHours(st, c.now()) {
		return false, "Outside trading hours", nil
	}
	return true, "", nil
}

// Apply performs a control action and persists the result.
func (c *Controller) Apply(action string) (State, error) {
	st, err := c.State()
	if err != nil {
		return State{}, err
	}

	switch action {
	case ActionPause:
		st.ManualPause = true
		st.ForceStart = false
	case ActionResume:
		st.ManualPause = false
		st.ForceStart = false
	case ActionForceStart:
		st.ManualPause = false
		st.ForceStart = true
	case ActionForceStop:
		st.ManualPause = true
		st.ForceStart = false
	default:
		return State{}, fmt.Errorf("unknown action %q", action)
	}

	if err := c.store.Save(StateDocName, st); err != nil {
		return State{}, fmt.Errorf("save trading state: %w", err)
	}
	return st, nil
}

// SetWindow updates the hours window and persists it.
func (c *Controller) SetWindow(enabled bool, startHour, endHour int) (State, error) {
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 24 || startHour >= endHour {
		return State{}, fmt.Errorf("invalid window %d-%d", startHour, endHour)
	}
	st, err := c.State()
	if err != nil {
		return State{}, err
	}
	st.Enabled = enabled
	st.StartHour = startHour
	st.EndHour = endHour
	if err := c.store.Save(StateDocName, st); err != nil {
		return State{}, fmt.Errorf("save trading state: %w", err)
	}
	return st, nil
}
