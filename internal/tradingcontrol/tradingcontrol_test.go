package tradingcontrol

import (
	"encoding/json"
	"testing"
	"time"
)

type memStore struct {
	docs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (s *memStore) Load(name string, out interface{}) (bool, error) {
	b, ok := s.docs[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (s *memStore) Save(name string, doc interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.docs[name] = b
	return nil
}

func at(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 1, hour, 30, 0, 0, time.UTC)
	}
}

func newController(t *testing.T, hour int) *Controller {
	t.Helper()
	c := New(newMemStore())
	c.SetClock(at(hour))
	return c
}

func TestAllowed_WithinWindow(t *testing.T) {
	c := newController(t, 19)
	ok, reason, err := c.Allowed()
	if err != nil {
		t.Fatalf("Allowed: %v", err)
	}
	if !ok || reason != "" {
		t.Errorf("expected allowed inside 18-23 window, got ok=%v reason=%q", ok, reason)
	}
}

func TestAllowed_OutsideWindow(t *testing.T) {
	c := newController(t, 9)
	ok, reason, err := c.Allowed()
	if err != nil {
		t.Fatalf("Allowed: %v", err)
	}
	if ok || reason != "Outside trading hours" {
		t.Errorf("expected hours block, got ok=%v reason=%q", ok, reason)
	}

	// End hour is exclusive.
	c.SetClock(at(23))
	if ok, _, _ := c.Allowed(); ok {
		t.Error("expected 23:30 to be outside an 18-23 window")
	}
}

func TestAllowed_DisabledWindowMeansAlwaysOn(t *testing.T) {
	c := newController(t, 3)
	if _, err := c.SetWindow(false, DefaultStartHour, DefaultEndHour); err != nil {
		t.Fatalf("SetWindow: %v", err)
	}
	if ok, _, _ := c.Allowed(); !ok {
		t.Error("expected disabled window to allow trading at any hour")
	}
}

func TestApply_PauseAndResume(t *testing.T) {
	c := newController(t, 19)

	if _, err := c.Apply(ActionPause); err != nil {
		t.Fatalf("Apply(pause): %v", err)
	}
	ok, reason, _ := c.Allowed()
	if ok || reason != "Trading manually paused" {
		t.Errorf("expected pause block, got ok=%v reason=%q", ok, reason)
	}

	if _, err := c.Apply(ActionResume); err != nil {
		t.Fatalf("Apply(resume): %v", err)
	}
	if ok, _, _ := c.Allowed(); !ok {
		t.Error("expected resume to restore trading")
	}
}

func TestApply_ForceStartOverridesEverything(t *testing.T) {
	c := newController(t, 3) // outside the window

	if _, err := c.Apply(ActionPause); err != nil {
		t.Fatalf("Apply(pause): %v", err)
	}
	st, err := c.Apply(ActionForceStart)
	if err != nil {
		t.Fatalf("Apply(force_start): %v", err)
	}
	if st.ManualPause {
		t.Error("expected force start to clear the pause")
	}
	if ok, _, _ := c.Allowed(); !ok {
		t.Error("expected force start to allow trading outside the window")
	}

	if _, err := c.Apply(ActionForceStop); err != nil {
		t.Fatalf("Apply(force_stop): %v", err)
	}
	if ok, _, _ := c.Allowed(); ok {
		t.Error("expected force stop to pause trading")
	}
}

func TestApply_UnknownAction(t *testing.T) {
	c := newController(t, 19)
	if _, err := c.Apply("explode"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestSetWindow_Validation(t *testing.T) {
	c := newController(t, 19)
	if _, err := c.SetWindow(true, 22, 10); err == nil {
		t.Error("expected error for inverted window")
	}
	if _, err := c.SetWindow(true, -1, 10); err == nil {
		t.Error("expected error for negative start hour")
	}

	st, err := c.SetWindow(true, 9, 17)
	if err != nil {
		t.Fatalf("SetWindow: %v", err)
	}
	if st.StartHour != 9 || st.EndHour != 17 {
		t.Errorf("expected persisted 9-17 window, got %+v", st)
	}
}
