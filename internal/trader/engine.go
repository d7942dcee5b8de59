// Package trader implements the trade state machine: a single simulated
// BTCUSDT position advanced one step per tick by the latest indicator
// snapshot, bracketed by the risk policy, with every decision appended to
// a persisted audit log.
package trader

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"papertraderv1/internal/indicator"
	"papertraderv1/internal/model"
	"papertraderv1/internal/notification"
	"papertraderv1/internal/risk"
)

const (
	// StartBalance is the paper account's opening balance in INR.
	StartBalance = 10000.0
	// CoinsPerTrade is the nominal BTC quantity reported on audit entries.
	CoinsPerTrade = 0.001
	// TradesDocName is the persisted trade document's name.
	TradesDocName = "demo_trades"
)

// TickResult is the outcome of one state-machine step, served back to the
// dashboard poll that triggered it.
type TickResult struct {
	Signal          model.SignalType    `json:"signal"`
	Price           float64             `json:"price"`
	Balance         float64             `json:"balance"`
	Holding         bool                `json:"holding"`
	PositionSide    string              `json:"position_side,omitempty"`
	Action          string              `json:"action"`
	StopLoss        *float64            `json:"stop_loss,omitempty"`
	TPLevels        []model.TPLevel     `json:"tp_levels"`
	PositionSize    float64             `json:"position_size"`
	LivePLINR       *float64            `json:"live_pl_inr,omitempty"`
	LastClosedTrade *model.ClosedTrade  `json:"last_closed_trade,omitempty"`
	LogEntry        model.OrderLogEntry `json:"log_entry"`
}

// Engine owns the persisted trade document. The mutex serializes whole
// ticks: each tick is one read-modify-write of the document, and
// overlapping ticks would otherwise race last-writer-wins.
type Engine struct {
	mu       sync.Mutex
	store    model.DocumentStore
	risk     *risk.Manager
	journal  model.TradeJournal
	notifier notification.Notifier
	now      func() time.Time
}

// New builds an engine over the given document store and risk manager.
// journal and notifier may be nil; both are best-effort sinks.
func New(store model.DocumentStore, riskMgr *risk.Manager, journal model.TradeJournal, notifier notification.Notifier) *Engine {
	return &Engine{
		store:    store,
		risk:     riskMgr,
		journal:  journal,
		notifier: notifier,
		now:      time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// loadDoc reads the trade document, creating a fresh one on first run.
func (e *Engine) loadDoc() (*model.TradeDocument, error) {
	var doc model.TradeDocument
	found, err := e.store.Load(TradesDocName, &doc)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	if !found {
		doc = model.TradeDocument{Balance: StartBalance}
	}
	return &doc, nil
}

func (e *Engine) saveDoc(doc *model.TradeDocument) error {
	if err := e.store.Save(TradesDocName, doc); err != nil {
		return fmt.Errorf("save trades: %w", err)
	}
	return nil
}

// closePosition realizes the position at exitPrice, folds the INR profit
// into the balance, appends the history record, and feeds the daily risk
// counters. The journal write is best-effort.
func (e *Engine) closePosition(doc *model.TradeDocument, pos *model.Position, exitPrice float64, reason string) *model.ClosedTrade {
	var profitUSDT float64
	if pos.Side == model.SideLong {
		profitUSDT = (exitPrice - pos.EntryPrice) * pos.Size
	} else {
		profitUSDT = (pos.EntryPrice - exitPrice) * pos.Size
	}
	profitINR := profitUSDT * risk.USDTINRRate

	balanceBefore := doc.Balance
	doc.Balance += profitINR

	rec := model.ClosedTrade{
		Side:          pos.Side,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		Size:          pos.Size,
		ProfitUSDT:    model.Round2(profitUSDT),
		ProfitINR:     model.Round2(profitINR),
		BalanceBefore: model.Round2(balanceBefore),
		BalanceAfter:  model.Round2(doc.Balance),
		ClosedAt:      e.now(),
		ExitReason:    reason,
	}
	doc.History = append(doc.History, rec)
	doc.OpenPosition = nil

	if err := e.risk.RecordTradeResult(profitINR); err != nil {
		log.Printf("[trader] record trade result: %v", err)
	}
	if e.journal != nil {
		if err := e.journal.RecordClose(rec); err != nil {
			log.Printf("[trader] journal close: %v", err)
		}
	}
	e.alert(notification.AlertInfo, "Position closed",
		fmt.Sprintf("%s closed @ $%.2f (%s), P/L ₹%.2f", pos.Side, exitPrice, reason, rec.ProfitINR))

	return &rec
}

// openPosition sizes and brackets a new position at price per the risk
// policy. Only the nearest ladder level is kept as the active target.
func (e *Engine) openPosition(doc *model.TradeDocument, side model.Side, price, atr, indicatorStop float64, cfg risk.Config) *model.Position {
	size := risk.PositionSize(doc.Balance, cfg)
	stop, _ := risk.StopLoss(price, side, atr, indicatorStop, cfg)
	ladder := risk.TakeProfitLevels(price, side, atr, cfg)

	pos := &model.Position{
		Side:         side,
		EntryPrice:   price,
		Size:         size,
		OriginalSize: size,
		StopLoss:     stop,
		OpenedAt:     e.now(),
		ATRAtEntry:   atr,
	}
	if side == model.SideLong {
		pos.Strategy = indicator.StrategyLabelSlow
	} else {
		pos.Strategy = indicator.StrategyLabelFast
	}
	if len(ladder) > 0 {
		pos.TP1Price = ladder[0].Price
		pos.TPLevels = ladder[:1]
	}
	doc.OpenPosition = pos
	return pos
}

// stopHit reports whether price has reached the position's stop.
func stopHit(pos *model.Position, price float64) bool {
	if pos.StopLoss == 0 {
		return false
	}
	if pos.Side == model.SideLong {
		return price <= pos.StopLoss
	}
	return price >= pos.StopLoss
}

// tp1Hit reports whether price has reached the active take-profit target.
func tp1Hit(pos *model.Position, price float64) bool {
	if pos.TP1Price == 0 {
		return false
	}
	if pos.Side == model.SideLong {
		return price >= pos.TP1Price
	}
	return price <= pos.TP1Price
}

// Tick advances the state machine one step for the given indicator
// snapshot. Exits are evaluated before the new signal, so a close and a
// reopen can happen in the same tick. Exactly one order-log entry is
// appended regardless of the path taken.
func (e *Engine) Tick(snap indicator.Snapshot) (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.loadDoc()
	if err != nil {
		return TickResult{}, err
	}

	// A zeroed price must never trigger a stop, a target, or an open.
	if snap.Signal == model.SignalNoData || snap.Price == 0 {
		entry := model.OrderLogEntry{
			Time:     e.now(),
			Side:     string(snap.Signal),
			Price:    snap.Price,
			Quantity: CoinsPerTrade,
			Action:   model.ActionHold,
		}
		doc.OrderLog = append(doc.OrderLog, entry)
		if err := e.saveDoc(doc); err != nil {
			return TickResult{}, err
		}
		res := e.result(doc, snap, "No market data. Holding.", nil, entry)
		return res, nil
	}

	cfg, err := e.risk.Config()
	if err != nil {
		return TickResult{}, err
	}

	entry := model.OrderLogEntry{
		Time:     e.now(),
		Side:     string(snap.Signal),
		Price:    snap.Price,
		Quantity: CoinsPerTrade,
	}
	var actionMsg string
	var lastClosed *model.ClosedTrade

	if pos := doc.OpenPosition; pos != nil {
		switch {
		case stopHit(pos, snap.Price):
			lastClosed = e.closePosition(doc, pos, snap.Price, model.ExitStopLoss)
			actionMsg = fmt.Sprintf("STOP-LOSS HIT @ $%.2f | P/L: ₹%.2f", snap.Price, lastClosed.ProfitINR)
			entry.Action = model.ActionStopLoss
			entry.PLinr = &lastClosed.ProfitINR

		case tp1Hit(pos, snap.Price):
			lastClosed = e.closePosition(doc, pos, snap.Price, model.ExitTP1FullExit)
			actionMsg = fmt.Sprintf("TP1 HIT @ $%.2f | FULL EXIT | P/L: ₹%.2f", snap.Price, lastClosed.ProfitINR)
			entry.Action = model.ActionTP1FullExit
			entry.PLinr = &lastClosed.ProfitINR

		case pos.BreakevenMoved && cfg.StopLoss.TrailingEnabled:
			if newStop, ok := risk.TrailingStopUpdate(snap.Price, pos.Side, pos.StopLoss, snap.ATR, cfg); ok {
				pos.StopLoss = newStop
				actionMsg = fmt.Sprintf("Trailing stop updated to $%.2f", newStop)
				entry.Action = model.ActionTrailingStop
			}
		}
	}

	switch snap.Signal {
	case model.SignalHold:
		if actionMsg == "" {
			actionMsg = "Holding position. Waiting for next signal."
			entry.Action = model.ActionHold
		}

	case model.SignalBuy:
		msg, closed := e.applyEntrySignal(doc, model.SideLong, snap, cfg, &entry)
		actionMsg += msg
		if closed != nil {
			lastClosed = closed
		}

	case model.SignalSell:
		msg, closed := e.applyEntrySignal(doc, model.SideShort, snap, cfg, &entry)
		actionMsg += msg
		if closed != nil {
			lastClosed = closed
		}
	}

	doc.OrderLog = append(doc.OrderLog, entry)
	if err := e.saveDoc(doc); err != nil {
		return TickResult{}, err
	}
	return e.result(doc, snap, actionMsg, lastClosed, entry), nil
}

// applyEntrySignal runs the Buy/Sell admission path: blocked first, then
// duplicate suppression, then close-opposite-and-open. The log entry is
// mutated in place so the tick still records exactly one entry.
func (e *Engine) applyEntrySignal(doc *model.TradeDocument, side model.Side, snap indicator.Snapshot, cfg risk.Config, entry *model.OrderLogEntry) (string, *model.ClosedTrade) {
	allowed, reason, err := e.risk.CanOpenTrade(doc.Balance)
	if err != nil {
		log.Printf("[trader] admission check: %v", err)
		allowed, reason = false, "risk state unavailable"
	}
	if !allowed {
		entry.Action = model.ActionBlocked
		e.alert(notification.AlertWarning, "Trade blocked", reason)
		return fmt.Sprintf("Cannot open %s: %s", side, reason), nil
	}

	pos := doc.OpenPosition
	if pos != nil && pos.Side == side {
		entry.Action = model.ActionIgnored
		return fmt.Sprintf("Ignoring repeated %q signal. Already in %s position.", snap.Signal, side), nil
	}

	var msg string
	var lastClosed *model.ClosedTrade
	if pos != nil {
		lastClosed = e.closePosition(doc, pos, snap.Price, model.ExitOppositeSignal)
		msg = fmt.Sprintf("CLOSED %s @ $%.2f, P/L: ₹%.2f. | ", pos.Side, snap.Price, lastClosed.ProfitINR)
		if side == model.SideLong {
			entry.Action = model.ActionCloseShort
		} else {
			entry.Action = model.ActionCloseLong
		}
	}

	opened := e.openPosition(doc, side, snap.Price, snap.ATR, snap.StopLine, cfg)
	msg += fmt.Sprintf("OPENED %s @ $%.2f | Size: %g BTC | SL: $%.2f | TP1: $%.2f",
		side, snap.Price, opened.Size, opened.StopLoss, opened.TP1Price)
	if side == model.SideLong {
		entry.Action = model.ActionOpenLong
	} else {
		entry.Action = model.ActionOpenShort
	}
	entry.StopLoss = &opened.StopLoss
	entry.TP1 = &opened.TP1Price
	doc.LastSignal = snap.Signal

	e.alert(notification.AlertInfo, "Position opened",
		fmt.Sprintf("%s opened @ $%.2f, size %g BTC", side, snap.Price, opened.Size))
	return msg, lastClosed
}

// ForceClose unconditionally closes any open position at the given price,
// bypassing signals and admission checks. Returns nil when flat.
func (e *Engine) ForceClose(price float64, reason string) (*model.ClosedTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.loadDoc()
	if err != nil {
		return nil, err
	}
	pos := doc.OpenPosition
	if pos == nil {
		return nil, nil
	}
	if reason == "" {
		reason = model.ExitForceClose
	}

	qty := pos.Size
	rec := e.closePosition(doc, pos, price, reason)
	entry := model.OrderLogEntry{
		Time:     e.now(),
		Side:     "CLOSE",
		Price:    price,
		Quantity: qty,
		Action:   model.ActionForceClose,
		PLinr:    &rec.ProfitINR,
	}
	doc.OrderLog = append(doc.OrderLog, entry)
	if err := e.saveDoc(doc); err != nil {
		return nil, err
	}
	return rec, nil
}

// MoveStopToBreakeven moves the open position's stop to entry plus a small
// fee buffer and arms the trailing ratchet. No-op when flat or already
// armed.
func (e *Engine) MoveStopToBreakeven() (float64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.loadDoc()
	if err != nil {
		return 0, false, err
	}
	pos := doc.OpenPosition
	if pos == nil || pos.BreakevenMoved {
		return 0, false, nil
	}

	pos.StopLoss = risk.BreakevenStop(pos.EntryPrice, pos.Side)
	pos.BreakevenMoved = true
	if err := e.saveDoc(doc); err != nil {
		return 0, false, err
	}
	return pos.StopLoss, true, nil
}

// History returns the full closed-trade list.
func (e *Engine) History() ([]model.ClosedTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := e.loadDoc()
	if err != nil {
		return nil, err
	}
	return doc.History, nil
}

// Document returns a copy of the current trade document, for read-only
// dashboard views.
func (e *Engine) Document() (model.TradeDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := e.loadDoc()
	if err != nil {
		return model.TradeDocument{}, err
	}
	return *doc, nil
}

// OrderLog returns the full audit trail.
func (e *Engine) OrderLog() ([]model.OrderLogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := e.loadDoc()
	if err != nil {
		return nil, err
	}
	return doc.OrderLog, nil
}

// LivePL computes the open position's unrealized INR P/L at price.
// Returns nil when flat.
func (e *Engine) LivePL(price float64) (*float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := e.loadDoc()
	if err != nil {
		return nil, err
	}
	return livePL(doc.OpenPosition, price), nil
}

func livePL(pos *model.Position, price float64) *float64 {
	if pos == nil || price == 0 {
		return nil
	}
	var profitUSDT float64
	if pos.Side == model.SideLong {
		profitUSDT = (price - pos.EntryPrice) * pos.Size
	} else {
		profitUSDT = (pos.EntryPrice - price) * pos.Size
	}
	pl := model.Round2(profitUSDT * risk.USDTINRRate)
	return &pl
}

// result assembles the dashboard-facing tick outcome from the saved state.
func (e *Engine) result(doc *model.TradeDocument, snap indicator.Snapshot, action string, lastClosed *model.ClosedTrade, entry model.OrderLogEntry) TickResult {
	res := TickResult{
		Signal:          snap.Signal,
		Price:           snap.Price,
		Balance:         model.Round2(doc.Balance),
		Action:          action,
		TPLevels:        []model.TPLevel{},
		LastClosedTrade: lastClosed,
		LogEntry:        entry,
	}
	if pos := doc.OpenPosition; pos != nil {
		res.Holding = true
		res.PositionSide = string(pos.Side)
		res.StopLoss = &pos.StopLoss
		res.TPLevels = pos.TPLevels
		res.PositionSize = pos.Size
		res.LivePLINR = livePL(pos, snap.Price)
	}
	return res
}

func (e *Engine) alert(level notification.AlertLevel, title, message string) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.notifier.Send(ctx, notification.Alert{Level: level, Title: title, Message: message}); err != nil {
		log.Printf("[trader] notify: %v", err)
	}
}
