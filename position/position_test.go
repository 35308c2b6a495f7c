package position

import (
	"testing"
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func mustBar(t *testing.T, ts time.Time, o, h, l, c float64) bar.PriceBar {
	t.Helper()
	b, err := bar.NewPriceBar(ts, d(o), d(h), d(l), d(c), decimal.Zero)
	if err != nil {
		t.Fatalf("mustBar: %v", err)
	}
	return b
}

func TestOpenUnitAssignsContiguousNumbers(t *testing.T) {
	p := NewInstrumentPosition("AAPL", Long)
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	u1 := p.OpenUnit(d(100), at, 10)
	u2 := p.OpenUnit(d(102), at.Add(24*time.Hour), 10)
	if u1.UnitNumber != 1 || u2.UnitNumber != 2 {
		t.Fatalf("want unit numbers 1,2, got %d,%d", u1.UnitNumber, u2.UnitNumber)
	}
	if p.NumOpenUnits() != 2 {
		t.Fatalf("want 2 open units, got %d", p.NumOpenUnits())
	}
}

func TestCloseUnitRenumbersRemainingOpenUnits(t *testing.T) {
	p := NewInstrumentPosition("AAPL", Long)
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	p.OpenUnit(d(100), at, 10)
	u2 := p.OpenUnit(d(102), at, 10)
	u3 := p.OpenUnit(d(104), at, 10)

	if err := p.CloseUnit(1, d(110), at.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if u2.UnitNumber != 1 || u3.UnitNumber != 2 {
		t.Fatalf("want renumbered 1,2, got %d,%d", u2.UnitNumber, u3.UnitNumber)
	}
	if p.NumOpenUnits() != 2 {
		t.Fatalf("want 2 open units after close, got %d", p.NumOpenUnits())
	}
}

func TestCloseUnitUnknownReturnsError(t *testing.T) {
	p := NewInstrumentPosition("AAPL", Long)
	if err := p.CloseUnit(99, d(1), time.Now()); err == nil {
		t.Fatal("expected error closing an unknown unit")
	}
}

func TestUnitByNumberMissesClosedUnits(t *testing.T) {
	p := NewInstrumentPosition("AAPL", Long)
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	p.OpenUnit(d(100), at, 10)
	if err := p.CloseUnit(1, d(105), at.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if p.UnitByNumber(1) != nil {
		t.Fatal("a closed unit number must not resolve via UnitByNumber")
	}
}

func TestIsFlatAndTotalOpenShares(t *testing.T) {
	p := NewInstrumentPosition("AAPL", Long)
	if !p.IsFlat() {
		t.Fatal("a fresh position must be flat")
	}
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	p.OpenUnit(d(100), at, 10)
	p.OpenUnit(d(102), at, 5)
	if p.IsFlat() {
		t.Fatal("position with open units must not be flat")
	}
	if got := p.TotalOpenShares(); got != 15 {
		t.Fatalf("want 15 total open shares, got %d", got)
	}
}

func TestAppendBarNoopOnClosedUnit(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	u := NewPositionUnit(1, d(100), at, 10)
	b1 := mustBar(t, at, 100, 101, 99, 100)
	u.AppendBar(b1)
	if u.NumBarsHeld() != 1 || len(u.History) != 1 {
		t.Fatalf("want 1 bar held after first append, got %d/%d", u.NumBarsHeld(), len(u.History))
	}
	u.Close(d(105), at.Add(24*time.Hour))
	b2 := mustBar(t, at.Add(24*time.Hour), 104, 106, 103, 105)
	u.AppendBar(b2)
	if u.NumBarsHeld() != 1 || len(u.History) != 1 {
		t.Fatal("appending to a closed unit must be a no-op")
	}
}

func TestCloneIsDeepIndependent(t *testing.T) {
	p := NewInstrumentPosition("AAPL", Long)
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	u := p.OpenUnit(d(100), at, 10)
	u.AppendBar(mustBar(t, at, 100, 101, 99, 100))

	clone := p.Clone()
	cu := clone.UnitByNumber(1)
	cu.AppendBar(mustBar(t, at.Add(24*time.Hour), 101, 102, 100, 101))

	if u.NumBarsHeld() != 1 {
		t.Fatal("mutating the clone's unit history must not affect the original")
	}
	if cu.NumBarsHeld() != 2 {
		t.Fatalf("clone's own unit should have 2 bars held, got %d", cu.NumBarsHeld())
	}
}

func TestRMultipleZeroWithoutStop(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	u := NewPositionUnit(1, d(100), at, 10)
	if !u.RMultiple(Long, d(110)).IsZero() {
		t.Fatal("RMultiple without a stop attached must be zero")
	}
}

func TestRMultipleLongAndShort(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	uLong := NewPositionUnit(1, d(100), at, 10)
	uLong.SetStop(d(95))
	uLong.Close(d(110), at.Add(24*time.Hour))
	if got := uLong.RMultiple(Long, d(0)); !got.Equal(d(2)) {
		t.Fatalf("long: want R-multiple 2, got %s", got)
	}

	uShort := NewPositionUnit(1, d(100), at, 10)
	uShort.SetStop(d(105))
	uShort.Close(d(90), at.Add(24*time.Hour))
	if got := uShort.RMultiple(Short, d(0)); !got.Equal(d(2)) {
		t.Fatalf("short: want R-multiple 2, got %s", got)
	}
}
