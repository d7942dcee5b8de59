package indicator

import (
	"testing"

	"papertraderv1/internal/model"
)

// buySetupSeries builds a window whose slow (buy-detector) run ends in a Long
// regime: 300 wide-range flat bars to warm up the slow volatility window,
// then a steady climb that crosses up through the re-seeded slow stop.
func buySetupSeries() []model.Candle {
	var candles []model.Candle
	for i := 0; i < 300; i++ {
		candles = append(candles, makeCandle(i, 100, 20))
	}
	close := 100.0
	for i := 300; i < 335; i++ {
		close += 7
		candles = append(candles, makeCandle(i, close, 2))
	}
	return candles
}

func TestComputeSignal_BuyFromSlowRun(t *testing.T) {
	candles := buySetupSeries()

	_, slowRegimes := ComputeTrailingStop(candles, SlowSensitivity, SlowPeriod)
	if slowRegimes[len(candles)-1] != RegimeLong {
		t.Fatalf("test setup: expected slow regime Long, got %v", slowRegimes[len(candles)-1])
	}

	snap := ComputeSignal(candles)
	if snap.Signal != model.SignalBuy {
		t.Fatalf("expected Buy, got %s", snap.Signal)
	}
	if snap.Price != candles[len(candles)-1].Close {
		t.Errorf("expected price=%.2f, got %.2f", candles[len(candles)-1].Close, snap.Price)
	}
	if snap.StopLine <= 0 || snap.StopLine >= snap.Price {
		t.Errorf("expected buy stop line below price, got %.2f (price %.2f)", snap.StopLine, snap.Price)
	}
	if snap.ATR <= 0 {
		t.Errorf("expected positive ATR, got %.4f", snap.ATR)
	}
}

func TestComputeSignal_SellOverridesBuy(t *testing.T) {
	// Append a drop that crosses below the tight fast stop but stays above
	// the slow stop: the slow run still says Long while the fast run flips
	// Short on the same bar. Sell must win.
	candles := buySetupSeries()
	lastClose := candles[len(candles)-1].Close
	candles = append(candles, makeCandle(len(candles), lastClose-9, 2))

	_, slowRegimes := ComputeTrailingStop(candles, SlowSensitivity, SlowPeriod)
	if slowRegimes[len(candles)-1] != RegimeLong {
		t.Fatalf("test setup: expected slow regime still Long, got %v", slowRegimes[len(candles)-1])
	}
	_, fastRegimes := ComputeTrailingStop(candles, FastSensitivity, FastPeriod)
	if fastRegimes[len(candles)-1] != RegimeShort {
		t.Fatalf("test setup: expected fast regime Short, got %v", fastRegimes[len(candles)-1])
	}

	snap := ComputeSignal(candles)
	if snap.Signal != model.SignalSell {
		t.Fatalf("expected Sell to override Buy, got %s", snap.Signal)
	}
	// Sell reports the fast run's stop, re-seeded above the close.
	if snap.StopLine <= snap.Price {
		t.Errorf("expected sell stop line above price, got %.2f (price %.2f)", snap.StopLine, snap.Price)
	}
}

func TestComputeSignal_HoldOnQuietWindow(t *testing.T) {
	var candles []model.Candle
	for i := 0; i < 50; i++ {
		candles = append(candles, makeCandle(i, 100, 2))
	}

	snap := ComputeSignal(candles)
	if snap.Signal != model.SignalHold {
		t.Fatalf("expected Hold, got %s", snap.Signal)
	}
	if snap.StopLine != snap.Price {
		t.Errorf("expected stop line to default to price, got %.2f", snap.StopLine)
	}
}

func TestComputeSignal_EmptyWindow(t *testing.T) {
	snap := ComputeSignal(nil)
	if snap.Signal != model.SignalNoData {
		t.Fatalf("expected %q, got %q", model.SignalNoData, snap.Signal)
	}
	if snap.Price != 0 || snap.ATR != 0 || snap.StopLine != 0 {
		t.Errorf("expected zeroed fields, got %+v", snap)
	}
}

func TestComputeSignal_ShortWindowNoATR(t *testing.T) {
	candles := makeSeries([]float64{100, 101, 102}, 2)
	snap := ComputeSignal(candles)
	if snap.ATR != 0 {
		t.Errorf("expected ATR=0 below the %d-bar warm-up, got %.4f", ATRPeriod, snap.ATR)
	}
}
