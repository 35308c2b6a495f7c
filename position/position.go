// Package position models the open/closed state of a single security: a
// PositionUnit for each pyramided entry, and an InstrumentPosition holding
// the ordered, same-direction units that together make up the net exposure
// in one symbol.
package position

import (
	"fmt"
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/evdnx/backtestcore/errs"
	"github.com/shopspring/decimal"
)

// Direction is the side of a position: Long or Short. Units within one
// InstrumentPosition must all share the same direction.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Long {
		return "Long"
	}
	return "Short"
}

// PositionUnit is one pyramided entry: an entry fill, an optional exit
// fill, and the risk levels attached at entry time.
type PositionUnit struct {
	UnitNumber int // 1-based, contiguous within the owning InstrumentPosition; renumbered on every close
	ID         int // stable for the unit's lifetime; the handle orders and transactions link against

	EntryPrice decimal.Decimal
	EntryAt    time.Time
	Units      int

	ExitPrice decimal.Decimal
	ExitAt    time.Time
	isOpen    bool

	StopPrice         decimal.Decimal
	ProfitTargetPrice decimal.Decimal
	HasStop           bool
	HasProfitTarget   bool

	numBarsHeld int

	// History is the ordered sequence of bars observed since entry,
	// inclusive of the entry bar, used by the return extractor to
	// reconstruct per-bar fractional returns for this unit.
	History []bar.PriceBar
}

// NewPositionUnit opens a unit at entryPrice/entryAt.
func NewPositionUnit(unitNumber int, entryPrice decimal.Decimal, entryAt time.Time, units int) *PositionUnit {
	return &PositionUnit{
		UnitNumber: unitNumber,
		EntryPrice: entryPrice,
		EntryAt:    entryAt,
		Units:      units,
		isOpen:     true,
	}
}

// SetStop attaches a stop-loss price to the unit.
func (u *PositionUnit) SetStop(price decimal.Decimal) {
	u.StopPrice = price
	u.HasStop = true
}

// SetProfitTarget attaches a profit-target price to the unit.
func (u *PositionUnit) SetProfitTarget(price decimal.Decimal) {
	u.ProfitTargetPrice = price
	u.HasProfitTarget = true
}

// IsOpen reports whether the unit has not yet been closed.
func (u *PositionUnit) IsOpen() bool { return u.isOpen }

// AppendBar records one more bar in the unit's history, advancing the
// bars-held counter; called once per bar the unit remains open, including
// the entry bar. Appending to a closed unit is a no-op since closed units
// are immutable, and re-appending the same timestamp already on top of the
// history is a no-op too: the broker records the entry fill's bar eagerly
// (so a unit opened on a range's final timestamp still gets one bar of
// history), and the driver's next updateBarNumber call would otherwise see
// that same timestamp again and double-count it.
func (u *PositionUnit) AppendBar(b bar.PriceBar) {
	if !u.isOpen {
		return
	}
	if n := len(u.History); n > 0 && u.History[n-1].Timestamp.Equal(b.Timestamp) {
		return
	}
	u.History = append(u.History, b)
	u.numBarsHeld++
}

// NumBarsHeld returns how many bars the unit has been open for.
func (u *PositionUnit) NumBarsHeld() int { return u.numBarsHeld }

// Close marks the unit closed at exitPrice/exitAt.
func (u *PositionUnit) Close(exitPrice decimal.Decimal, exitAt time.Time) {
	u.ExitPrice = exitPrice
	u.ExitAt = exitAt
	u.isOpen = false
}

// RMultiple returns the realized (or, for an open unit, unrealized at
// markPrice) profit expressed as a multiple of the initial stop distance.
// Returns zero (not an error) when no stop was ever attached, since
// R-multiple is undefined without a risk reference.
func (u *PositionUnit) RMultiple(dir Direction, markPrice decimal.Decimal) decimal.Decimal {
	if !u.HasStop {
		return decimal.Zero
	}
	risk := u.EntryPrice.Sub(u.StopPrice).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	ref := markPrice
	if !u.isOpen {
		ref = u.ExitPrice
	}
	pnl := ref.Sub(u.EntryPrice)
	if dir == Short {
		pnl = pnl.Neg()
	}
	return pnl.Div(risk)
}

// InstrumentPosition is the net position in one symbol: zero or more
// same-direction units. A flat position (no open units) has zero net
// exposure but may still retain closed units for history.
type InstrumentPosition struct {
	Symbol    string
	Direction Direction
	units     []*PositionUnit
	nextUnit  int
	nextID    int
}

// NewInstrumentPosition starts a flat position awaiting its first unit.
func NewInstrumentPosition(symbol string, dir Direction) *InstrumentPosition {
	return &InstrumentPosition{Symbol: symbol, Direction: dir, nextUnit: 1, nextID: 1}
}

// OpenUnit adds a new unit in the position's direction, returning it. The
// unit's ID is assigned once and never reused or renumbered, unlike
// UnitNumber — callers that must hold a reference to this unit across bars
// (a pending exit order's TargetUnit, a transaction's PositionID) key on ID
// so a sibling unit's close-triggered renumbering never invalidates them.
func (p *InstrumentPosition) OpenUnit(entryPrice decimal.Decimal, entryAt time.Time, units int) *PositionUnit {
	u := NewPositionUnit(p.nextUnit, entryPrice, entryAt, units)
	u.ID = p.nextID
	p.nextUnit++
	p.nextID++
	p.units = append(p.units, u)
	return u
}

// Units returns every unit, open and closed, in entry order.
func (p *InstrumentPosition) Units() []*PositionUnit { return p.units }

// OpenUnits returns only the currently open units, in entry order.
func (p *InstrumentPosition) OpenUnits() []*PositionUnit {
	out := make([]*PositionUnit, 0, len(p.units))
	for _, u := range p.units {
		if u.IsOpen() {
			out = append(out, u)
		}
	}
	return out
}

// UnitByNumber returns the open unit with the given 1-based number, or nil
// if no open unit has it. Closed units are skipped; because a close
// renumbers the remaining open units, a number captured before that close
// may now resolve to a different unit (use UnitByID for a stable handle).
func (p *InstrumentPosition) UnitByNumber(n int) *PositionUnit {
	for _, u := range p.units {
		if u.UnitNumber == n && u.IsOpen() {
			return u
		}
	}
	return nil
}

// UnitByID returns the open unit with the given stable ID, or nil. Unlike
// UnitByNumber, the result is unaffected by renumbering from a sibling
// unit's close, making it the right lookup for a handle captured before
// this bar (a pending order's TargetUnit, a transaction's PositionID).
func (p *InstrumentPosition) UnitByID(id int) *PositionUnit {
	for _, u := range p.units {
		if u.ID == id && u.IsOpen() {
			return u
		}
	}
	return nil
}

// UnitByIDAny returns the unit with the given stable ID regardless of open
// or closed state, or nil. Used when rewiring a transaction's Unit pointer
// against a cloned InstrumentPosition, where the referenced unit may already
// be closed.
func (p *InstrumentPosition) UnitByIDAny(id int) *PositionUnit {
	for _, u := range p.units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// IsFlat reports whether the position currently holds no open units.
func (p *InstrumentPosition) IsFlat() bool {
	return len(p.OpenUnits()) == 0
}

// NumOpenUnits is the count of currently open units, used by pyramiding
// predicates to cap the number of concurrent units per symbol.
func (p *InstrumentPosition) NumOpenUnits() int { return len(p.OpenUnits()) }

// CloseUnit closes the unit with the given unit number and renumbers the
// remaining open units to stay 1-based and contiguous, matching the
// original's in-place erase-and-shift semantics.
func (p *InstrumentPosition) CloseUnit(unitNumber int, exitPrice decimal.Decimal, exitAt time.Time) error {
	for _, u := range p.units {
		if u.UnitNumber == unitNumber && u.IsOpen() {
			u.Close(exitPrice, exitAt)
			p.renumberOpenUnits()
			return nil
		}
	}
	return fmt.Errorf("symbol %s: unit %d: %w", p.Symbol, unitNumber, errs.ErrUnknownUnit)
}

func (p *InstrumentPosition) renumberOpenUnits() {
	n := 1
	for _, u := range p.units {
		if u.IsOpen() {
			u.UnitNumber = n
			n++
		}
	}
	p.nextUnit = n
}

// Clone returns a deep copy of the position: every unit is copied
// independently so mutating the clone's units never affects the original,
// matching the original's copy-constructor semantics for positions
// snapshotted across parallel backtests.
func (p *InstrumentPosition) Clone() *InstrumentPosition {
	cp := &InstrumentPosition{Symbol: p.Symbol, Direction: p.Direction, nextUnit: p.nextUnit, nextID: p.nextID}
	cp.units = make([]*PositionUnit, len(p.units))
	for i, u := range p.units {
		unitCopy := *u
		unitCopy.History = append([]bar.PriceBar(nil), u.History...)
		cp.units[i] = &unitCopy
	}
	return cp
}

// TotalOpenShares sums the Units field across open units — the net share
// count held in the position.
func (p *InstrumentPosition) TotalOpenShares() int {
	total := 0
	for _, u := range p.OpenUnits() {
		total += u.Units
	}
	return total
}
