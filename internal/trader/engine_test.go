package trader

import (
	"encoding/json"
	"testing"
	"time"

	"papertraderv1/internal/indicator"
	"papertraderv1/internal/model"
	"papertraderv1/internal/risk"
)

// memStore is an in-memory document store for tests.
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

// testConfig uses fixed 0.01 BTC sizing and a pure ATR stop so the
// scenario numbers land exactly on two decimals.
func testConfig() risk.Config {
	cfg := risk.DefaultConfig()
	cfg.PositionSizing.Method = risk.SizingFixed
	cfg.PositionSizing.Value = 0.01
	cfg.StopLoss.Type = risk.StopModeATR
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *risk.Manager) {
	t.Helper()
	store := newMemStore()
	clock := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	riskMgr := risk.NewManager(store)
	riskMgr.SetClock(clock)
	if err := riskMgr.SaveConfig(testConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	e := New(store, riskMgr, nil, nil)
	e.SetClock(clock)
	return e, riskMgr
}

func snap(signal model.SignalType, price, atr, stopLine float64) indicator.Snapshot {
	return indicator.Snapshot{Signal: signal, Price: price, ATR: atr, StopLine: stopLine}
}

func TestTick_OpenLongThenStopOut(t *testing.T) {
	e, _ := newTestEngine(t)

	// Buy at 100, ATR 2, stop multiplier 2: ATR stop at 96, TP1 at 106.
	res, err := e.Tick(snap(model.SignalBuy, 100, 2, 0))
	if err != nil {
		t.Fatalf("Tick(buy): %v", err)
	}
	if !res.Holding || res.PositionSide != "LONG" {
		t.Fatalf("expected open LONG, got %+v", res)
	}
	if res.StopLoss == nil || *res.StopLoss != 96 {
		t.Fatalf("expected stop=96, got %v", res.StopLoss)
	}
	if res.PositionSize != 0.01 {
		t.Errorf("expected size=0.01, got %g", res.PositionSize)
	}
	if res.LogEntry.Action != model.ActionOpenLong {
		t.Errorf("expected OPEN_LONG log action, got %s", res.LogEntry.Action)
	}

	// Hold at 95: below the stop, full close at the tick price.
	res, err = e.Tick(snap(model.SignalHold, 95, 2, 0))
	if err != nil {
		t.Fatalf("Tick(hold): %v", err)
	}
	if res.Holding {
		t.Fatal("expected position closed after stop hit")
	}
	if res.LogEntry.Action != model.ActionStopLoss {
		t.Errorf("expected STOP_LOSS log action, got %s", res.LogEntry.Action)
	}
	if res.LastClosedTrade == nil {
		t.Fatal("expected a closed trade record")
	}
	rec := res.LastClosedTrade
	if rec.ExitPrice != 95 || rec.ExitReason != model.ExitStopLoss {
		t.Errorf("expected exit at 95 with stop-loss reason, got %+v", rec)
	}
	// Loss: (95-100)*0.01 = -0.05 USDT = -4.25 INR.
	if rec.ProfitINR != -4.25 {
		t.Errorf("expected P/L=-4.25 INR, got %.2f", rec.ProfitINR)
	}
	if res.Balance != 9995.75 {
		t.Errorf("expected balance=9995.75, got %.2f", res.Balance)
	}
}

func TestTick_TP1FullExit(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Tick(snap(model.SignalBuy, 100, 2, 0)); err != nil {
		t.Fatalf("Tick(buy): %v", err)
	}

	// TP1 sits at 106 (long multiplier 3 x ATR 2); 107 clears it.
	res, err := e.Tick(snap(model.SignalHold, 107, 2, 0))
	if err != nil {
		t.Fatalf("Tick(hold): %v", err)
	}
	if res.Holding {
		t.Fatal("expected full exit at TP1")
	}
	if res.LogEntry.Action != model.ActionTP1FullExit {
		t.Errorf("expected TP1_FULL_EXIT log action, got %s", res.LogEntry.Action)
	}
	rec := res.LastClosedTrade
	if rec == nil || rec.ExitReason != model.ExitTP1FullExit {
		t.Fatalf("expected TP1 exit reason, got %+v", rec)
	}
	// Profit: (107-100)*0.01 = 0.07 USDT = 5.95 INR.
	if rec.ProfitINR != 5.95 {
		t.Errorf("expected P/L=5.95 INR, got %.2f", rec.ProfitINR)
	}
}

func TestTick_DuplicateBuyIgnored(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Tick(snap(model.SignalBuy, 100, 2, 0)); err != nil {
		t.Fatalf("Tick(buy): %v", err)
	}
	res, err := e.Tick(snap(model.SignalBuy, 101, 2, 0))
	if err != nil {
		t.Fatalf("Tick(buy again): %v", err)
	}
	if res.LogEntry.Action != model.ActionIgnored {
		t.Errorf("expected IGNORED log action, got %s", res.LogEntry.Action)
	}
	history, _ := e.History()
	if len(history) != 0 {
		t.Errorf("expected no closed trades, got %d", len(history))
	}

	// The original entry survives untouched.
	delta, err := e.LivePL(101)
	if err != nil || delta == nil {
		t.Fatalf("LivePL: %v", err)
	}
	// (101-100)*0.01*85 = 0.85 INR unrealized.
	if *delta != 0.85 {
		t.Errorf("expected live P/L=0.85, got %.2f", *delta)
	}
}

func TestTick_OppositeSignalFlipsPosition(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Tick(snap(model.SignalBuy, 100, 2, 0)); err != nil {
		t.Fatalf("Tick(buy): %v", err)
	}

	// Sell at 104 (below TP1): the long closes at a profit and a short
	// opens at 104 in the same tick.
	res, err := e.Tick(snap(model.SignalSell, 104, 2, 0))
	if err != nil {
		t.Fatalf("Tick(sell): %v", err)
	}
	if !res.Holding || res.PositionSide != "SHORT" {
		t.Fatalf("expected flip to SHORT, got %+v", res)
	}
	rec := res.LastClosedTrade
	if rec == nil || rec.ExitReason != model.ExitOppositeSignal {
		t.Fatalf("expected opposite-signal close, got %+v", rec)
	}
	// (104-100)*0.01 = 0.04 USDT = 3.40 INR.
	if rec.ProfitINR != 3.4 {
		t.Errorf("expected P/L=3.40 INR, got %.2f", rec.ProfitINR)
	}
	// One log entry covers the whole flip; the open wins the action tag.
	if res.LogEntry.Action != model.ActionOpenShort {
		t.Errorf("expected OPEN_SHORT log action, got %s", res.LogEntry.Action)
	}
	log, _ := e.OrderLog()
	if len(log) != 2 {
		t.Errorf("expected 2 log entries after 2 ticks, got %d", len(log))
	}
}

func TestTick_NoDataIsNoOp(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Tick(snap(model.SignalNoData, 0, 0, 0))
	if err != nil {
		t.Fatalf("Tick(no data): %v", err)
	}
	if res.Holding || res.Balance != 10000 {
		t.Errorf("expected untouched flat account, got %+v", res)
	}
	if res.LogEntry.Action != model.ActionHold {
		t.Errorf("expected HOLD log action, got %s", res.LogEntry.Action)
	}

	// With a position open, a zeroed price must not trip the stop.
	if _, err := e.Tick(snap(model.SignalBuy, 100, 2, 0)); err != nil {
		t.Fatalf("Tick(buy): %v", err)
	}
	res, err = e.Tick(snap(model.SignalNoData, 0, 0, 0))
	if err != nil {
		t.Fatalf("Tick(no data with position): %v", err)
	}
	if !res.Holding {
		t.Fatal("expected position to survive a no-data tick")
	}
	history, _ := e.History()
	if len(history) != 0 {
		t.Errorf("expected no closes on zeroed price, got %d", len(history))
	}
}

func TestTick_BlockedWhenDailyCapExhausted(t *testing.T) {
	e, riskMgr := newTestEngine(t)

	for i := 0; i < 20; i++ {
		if err := riskMgr.RecordTradeResult(1); err != nil {
			t.Fatalf("RecordTradeResult: %v", err)
		}
	}

	res, err := e.Tick(snap(model.SignalBuy, 100, 2, 0))
	if err != nil {
		t.Fatalf("Tick(buy): %v", err)
	}
	if res.Holding {
		t.Fatal("expected no position while blocked")
	}
	if res.LogEntry.Action != model.ActionBlocked {
		t.Errorf("expected BLOCKED log action, got %s", res.LogEntry.Action)
	}
}

func TestTick_TrailingAfterBreakeven(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Tick(snap(model.SignalBuy, 100, 2, 0)); err != nil {
		t.Fatalf("Tick(buy): %v", err)
	}

	stop, moved, err := e.MoveStopToBreakeven()
	if err != nil || !moved {
		t.Fatalf("MoveStopToBreakeven: moved=%v err=%v", moved, err)
	}
	if stop != 100.1 {
		t.Errorf("expected breakeven stop=100.10, got %.2f", stop)
	}

	// Price 105, trailing distance 3 (ATR 2 x 1.5): stop ratchets to 102.
	res, err := e.Tick(snap(model.SignalHold, 105, 2, 0))
	if err != nil {
		t.Fatalf("Tick(hold): %v", err)
	}
	if res.LogEntry.Action != model.ActionTrailingStop {
		t.Errorf("expected TRAILING_STOP_UPDATE, got %s", res.LogEntry.Action)
	}
	if res.StopLoss == nil || *res.StopLoss != 102 {
		t.Fatalf("expected trailed stop=102, got %v", res.StopLoss)
	}

	// Same price again: the ratchet must not move.
	res, err = e.Tick(snap(model.SignalHold, 105, 2, 0))
	if err != nil {
		t.Fatalf("Tick(hold again): %v", err)
	}
	if res.LogEntry.Action != model.ActionHold {
		t.Errorf("expected HOLD on non-improving price, got %s", res.LogEntry.Action)
	}
	if *res.StopLoss != 102 {
		t.Errorf("expected stop unchanged at 102, got %.2f", *res.StopLoss)
	}
}

func TestForceClose(t *testing.T) {
	e, _ := newTestEngine(t)

	rec, err := e.ForceClose(100, "")
	if err != nil {
		t.Fatalf("ForceClose(flat): %v", err)
	}
	if rec != nil {
		t.Fatal("expected nil record when flat")
	}

	if _, err := e.Tick(snap(model.SignalBuy, 100, 2, 0)); err != nil {
		t.Fatalf("Tick(buy): %v", err)
	}
	rec, err = e.ForceClose(102, "")
	if err != nil {
		t.Fatalf("ForceClose: %v", err)
	}
	if rec == nil || rec.ExitReason != model.ExitForceClose {
		t.Fatalf("expected force-close record, got %+v", rec)
	}

	log, _ := e.OrderLog()
	last := log[len(log)-1]
	if last.Action != model.ActionForceClose || last.Side != "CLOSE" {
		t.Errorf("expected FORCE_CLOSE log entry, got %+v", last)
	}
	if last.Quantity != 0.01 {
		t.Errorf("expected closed quantity on log entry, got %g", last.Quantity)
	}
}

func TestBalanceConservation(t *testing.T) {
	e, _ := newTestEngine(t)

	ticks := []indicator.Snapshot{
		snap(model.SignalBuy, 100, 2, 0),
		snap(model.SignalHold, 95, 2, 0),  // stop out
		snap(model.SignalSell, 95, 2, 0),  // open short, stop at 99
		snap(model.SignalHold, 107, 2, 0), // short stopped out
	}
	for i, s := range ticks {
		if _, err := e.Tick(s); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	history, err := e.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) < 2 {
		t.Fatalf("expected at least 2 closed trades, got %d", len(history))
	}
	for i, rec := range history {
		if got := model.Round2(rec.BalanceBefore + rec.ProfitINR); got != rec.BalanceAfter {
			t.Errorf("trade %d: balance_after=%.2f, want %.2f", i, rec.BalanceAfter, got)
		}
		if got := model.Round2(rec.ProfitUSDT * risk.USDTINRRate); got != rec.ProfitINR {
			t.Errorf("trade %d: profit_inr=%.2f, want %.2f", i, rec.ProfitINR, got)
		}
	}
	// Chained: each trade starts from the previous trade's balance.
	for i := 1; i < len(history); i++ {
		if history[i].BalanceBefore != history[i-1].BalanceAfter {
			t.Errorf("trade %d: balance_before=%.2f, want %.2f", i, history[i].BalanceBefore, history[i-1].BalanceAfter)
		}
	}
}

func TestPerformanceSummary(t *testing.T) {
	e, _ := newTestEngine(t)

	empty, err := e.Performance()
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if empty.TotalTrades != 0 || empty.CurrentBalance != 10000 {
		t.Errorf("expected empty summary at start, got %+v", empty)
	}

	// One winner, one loser.
	steps := []indicator.Snapshot{
		snap(model.SignalBuy, 100, 2, 0),
		snap(model.SignalHold, 107, 2, 0), // TP1 exit: +5.95
		snap(model.SignalBuy, 100, 2, 0),
		snap(model.SignalHold, 95, 2, 0), // stop out: -4.25
	}
	for i, s := range steps {
		if _, err := e.Tick(s); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	got, err := e.Performance()
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if got.TotalTrades != 2 || got.WinningTrades != 1 || got.LosingTrades != 1 {
		t.Errorf("expected 2 trades, 1 win 1 loss, got %+v", got)
	}
	if got.WinRate != 50 {
		t.Errorf("expected win rate 50, got %.2f", got.WinRate)
	}
	if got.TotalProfitINR != 1.7 {
		t.Errorf("expected total profit 1.70, got %.2f", got.TotalProfitINR)
	}
	if got.TotalReturn != 1.7 {
		t.Errorf("expected total return 1.70, got %.2f", got.TotalReturn)
	}
}
