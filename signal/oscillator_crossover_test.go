package signal

import (
	"testing"
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/evdnx/backtestcore/testutils"
	"github.com/evdnx/goti"
)

// rampRows builds a steady directional OHLCV ramp of n bars starting at
// startClose, moving by step per bar: enough to clear the 14-bar RSI
// warm-up and to push the oscillator suite through a clean crossover, the
// same construction the teacher's oscillator-based strategy tests use.
func rampRows(n int, startClose, step float64) []testutils.OHLC {
	rows := make([]testutils.OHLC, n)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := startClose + step*float64(i+1)
		rows[i] = testutils.OHLC{
			Date:   day.AddDate(0, 0, i).Format("2006-01-02"),
			Open:   price,
			High:   price + 0.5,
			Low:    price - 0.5,
			Close:  price,
			Volume: 1000,
		}
	}
	return rows
}

func TestOscillatorCrossoverFiresBullishOnUpRamp(t *testing.T) {
	sec := testutils.NewSecurity("AAPL", rampRows(15, 100, 1))
	ev := NewOscillatorCrossover(goti.DefaultConfig(), true)

	bars := sec.Series.Bars()
	got := ev.Signal(sec, bars[len(bars)-1].Timestamp)
	if !got {
		t.Fatal("want a bullish crossover signal after a steady 15-bar up ramp")
	}
}

func TestOscillatorCrossoverFiresBearishOnDownRamp(t *testing.T) {
	sec := testutils.NewSecurity("AAPL", rampRows(15, 115, -1))
	ev := NewOscillatorCrossover(goti.DefaultConfig(), false)

	bars := sec.Series.Bars()
	got := ev.Signal(sec, bars[len(bars)-1].Timestamp)
	if !got {
		t.Fatal("want a bearish crossover signal after a steady 15-bar down ramp")
	}
}

func TestOscillatorCrossoverSilentDuringWarmup(t *testing.T) {
	sec := testutils.NewSecurity("AAPL", rampRows(5, 100, 1))
	ev := NewOscillatorCrossover(goti.DefaultConfig(), true)

	bars := sec.Series.Bars()
	got := ev.Signal(sec, bars[len(bars)-1].Timestamp)
	if got {
		t.Fatal("fewer than 14 bars must never produce a signal")
	}
}

func TestOscillatorCrossoverTracksEachSecurityIndependently(t *testing.T) {
	up := testutils.NewSecurity("AAPL", rampRows(15, 100, 1))
	down := testutils.NewSecurity("MSFT", rampRows(15, 115, -1))
	ev := NewOscillatorCrossover(goti.DefaultConfig(), true)

	upBars := up.Series.Bars()
	downBars := down.Series.Bars()
	if !ev.Signal(up, upBars[len(upBars)-1].Timestamp) {
		t.Fatal("up-ramp security should fire the bullish evaluator")
	}
	if ev.Signal(down, downBars[len(downBars)-1].Timestamp) {
		t.Fatal("down-ramp security should not fire the bullish evaluator")
	}
}
