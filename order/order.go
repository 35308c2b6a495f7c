// Package order implements the typed order model and its lifecycle state
// machine: market/limit/stop orders for entries and exits, long and short,
// transitioning pending -> executed|canceled under the fill rules in the
// design. The eight concrete kinds from the original class hierarchy are
// collapsed into one Order struct tagged by Kind, with fill predicate and
// validation dispatched on that tag instead of virtual dispatch.
package order

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/evdnx/backtestcore/errs"
	"github.com/shopspring/decimal"
)

// Kind is the closed sum over the eight order types the design supports.
type Kind int

const (
	MarketEntryLong Kind = iota
	MarketEntryShort
	MarketExitSell
	MarketExitCover
	LimitExitSell
	LimitExitCover
	StopExitSell
	StopExitCover
)

func (k Kind) String() string {
	switch k {
	case MarketEntryLong:
		return "MarketEntryLong"
	case MarketEntryShort:
		return "MarketEntryShort"
	case MarketExitSell:
		return "MarketExitSell"
	case MarketExitCover:
		return "MarketExitCover"
	case LimitExitSell:
		return "LimitExitSell"
	case LimitExitCover:
		return "LimitExitCover"
	case StopExitSell:
		return "StopExitSell"
	case StopExitCover:
		return "StopExitCover"
	default:
		return "UnknownKind"
	}
}

func (k Kind) IsEntry() bool {
	return k == MarketEntryLong || k == MarketEntryShort
}

func (k Kind) IsExit() bool { return !k.IsEntry() }

func (k Kind) IsLong() bool {
	switch k {
	case MarketEntryLong, MarketExitSell, LimitExitSell, StopExitSell:
		return true
	default:
		return false
	}
}

func (k Kind) IsShort() bool { return !k.IsLong() }

func (k Kind) IsMarket() bool {
	return k == MarketEntryLong || k == MarketEntryShort || k == MarketExitSell || k == MarketExitCover
}

func (k Kind) IsStop() bool { return k == StopExitSell || k == StopExitCover }
func (k Kind) IsLimit() bool {
	return k == LimitExitSell || k == LimitExitCover
}

// Priority returns the same-bar processing priority: market=1, stop=5,
// limit=10 (lower value processed first).
func (k Kind) Priority() uint32 {
	switch {
	case k.IsMarket():
		return 1
	case k.IsStop():
		return 5
	case k.IsLimit():
		return 10
	default:
		return 0
	}
}

// State is the order's lifecycle position. Transitions are one-shot and
// exclusive: Executed and Canceled are terminal.
type State int

const (
	Pending State = iota
	Executed
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Executed:
		return "Executed"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Observer is notified exactly once on an order's terminal transition. A
// failing observer does not prevent the rest from being notified; the
// first error returned by any observer is propagated to the caller of
// MarkExecuted/MarkCanceled after every observer has run.
type Observer interface {
	OrderExecuted(o *Order) error
	OrderCanceled(o *Order) error
}

var nextOrderID uint64 // shared across parallel backtests; only updated via atomic.AddUint64.

// Order is the immutable intent plus mutable lifecycle state for one
// trading instruction. LimitPrice/StopPrice/StopLossPct/ProfitTargetPct are
// optional depending on Kind: only entry orders carry stop-loss/profit
// target percentages, and only limit/stop orders carry their trigger price.
type Order struct {
	ID      uint64
	Symbol  string
	Kind    Kind
	Units   int
	OrderAt time.Time

	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal

	// StopLossPct/ProfitTargetPct apply to entry orders only; they are the
	// pattern's requested percentages, not yet resolved to a price — that
	// resolution happens once the entry fills and a position exists.
	StopLossPct     decimal.Decimal
	ProfitTargetPct decimal.Decimal

	// TargetUnit is the stable PositionUnit.ID of the unit an exit order
	// closes (not its renumbered UnitNumber). Zero means "the oldest open
	// unit" (FIFO), the fallback used by exits that close a whole position
	// rather than one pyramided unit.
	TargetUnit int

	state  State
	fillAt time.Time
	fillPx decimal.Decimal

	observers []Observer
}

// New constructs a pending order. Units must be > 0. Limit/stop kinds
// require their trigger price to be set via WithLimitPrice/WithStopPrice
// before the order is submitted to a dispatcher.
func New(symbol string, kind Kind, units int, orderAt time.Time) (*Order, error) {
	if units <= 0 {
		return nil, fmt.Errorf("order for %s at %s: zero units: %w", symbol, orderAt, errs.ErrOrderConstructionInvalid)
	}
	return &Order{
		ID:      atomic.AddUint64(&nextOrderID, 1),
		Symbol:  symbol,
		Kind:    kind,
		Units:   units,
		OrderAt: orderAt,
		state:   Pending,
	}, nil
}

// WithLimitPrice sets the trigger price for a limit exit order and returns
// the receiver for chaining.
func (o *Order) WithLimitPrice(p decimal.Decimal) *Order {
	o.LimitPrice = p
	return o
}

// WithStopPrice sets the trigger price for a stop exit order.
func (o *Order) WithStopPrice(p decimal.Decimal) *Order {
	o.StopPrice = p
	return o
}

// WithEntryRisk sets the stop-loss and profit-target percentages carried by
// an entry order for later use when the resulting position unit is opened.
func (o *Order) WithEntryRisk(stopLossPct, profitTargetPct decimal.Decimal) *Order {
	o.StopLossPct = stopLossPct
	o.ProfitTargetPct = profitTargetPct
	return o
}

// WithTargetUnit sets the stable ID of the position unit this exit order
// closes.
func (o *Order) WithTargetUnit(unitID int) *Order {
	o.TargetUnit = unitID
	return o
}

// AddObserver registers a non-owning observer, notified in registration
// order exactly once on terminal transition.
func (o *Order) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

func (o *Order) IsPending() bool  { return o.state == Pending }
func (o *Order) IsExecuted() bool { return o.state == Executed }
func (o *Order) IsCanceled() bool { return o.state == Canceled }

// FillTime and FillPrice are only valid once the order has executed.
func (o *Order) FillTime() time.Time       { return o.fillAt }
func (o *Order) FillPrice() decimal.Decimal { return o.fillPx }

// validateFill enforces the side-specific price test from the design's
// fill-predicate table; violations return ErrOrderNotExecuted.
func (o *Order) validateFill(fillPrice decimal.Decimal) error {
	switch o.Kind {
	case LimitExitSell:
		if fillPrice.LessThan(o.LimitPrice) {
			return fmt.Errorf("order %d (%s): fill %s below limit %s: %w", o.ID, o.Kind, fillPrice, o.LimitPrice, errs.ErrOrderNotExecuted)
		}
	case LimitExitCover:
		if fillPrice.GreaterThan(o.LimitPrice) {
			return fmt.Errorf("order %d (%s): fill %s above limit %s: %w", o.ID, o.Kind, fillPrice, o.LimitPrice, errs.ErrOrderNotExecuted)
		}
	case StopExitSell:
		if fillPrice.GreaterThan(o.StopPrice) {
			return fmt.Errorf("order %d (%s): fill %s above stop %s: %w", o.ID, o.Kind, fillPrice, o.StopPrice, errs.ErrOrderNotExecuted)
		}
	case StopExitCover:
		if fillPrice.LessThan(o.StopPrice) {
			return fmt.Errorf("order %d (%s): fill %s below stop %s: %w", o.ID, o.Kind, fillPrice, o.StopPrice, errs.ErrOrderNotExecuted)
		}
	}
	return nil
}

// FillPredicate reports whether this order would trigger against bar b, and
// the resulting fill price if so. Market orders always trigger at the
// open; limit/stop exits trigger per the design's table.
func (o *Order) FillPredicate(b bar.PriceBar) (price decimal.Decimal, triggers bool) {
	switch o.Kind {
	case MarketEntryLong, MarketEntryShort, MarketExitSell, MarketExitCover:
		return b.Open, true
	case LimitExitSell:
		if b.High.GreaterThanOrEqual(o.LimitPrice) {
			if b.Open.GreaterThanOrEqual(o.LimitPrice) {
				return b.Open, true
			}
			return o.LimitPrice, true
		}
		return decimal.Zero, false
	case LimitExitCover:
		if b.Low.LessThanOrEqual(o.LimitPrice) {
			if b.Open.LessThanOrEqual(o.LimitPrice) {
				return b.Open, true
			}
			return o.LimitPrice, true
		}
		return decimal.Zero, false
	case StopExitSell:
		if b.Low.LessThanOrEqual(o.StopPrice) {
			if b.Open.LessThanOrEqual(o.StopPrice) {
				return b.Open, true
			}
			return o.StopPrice, true
		}
		return decimal.Zero, false
	case StopExitCover:
		if b.High.GreaterThanOrEqual(o.StopPrice) {
			if b.Open.GreaterThanOrEqual(o.StopPrice) {
				return b.Open, true
			}
			return o.StopPrice, true
		}
		return decimal.Zero, false
	default:
		return decimal.Zero, false
	}
}

// MarkExecuted transitions Pending -> Executed. fillAt must be strictly
// after OrderAt, except for market-at-open kinds which only require >=
// (the order and its fill can legitimately share the same bar boundary
// when the order was placed to trigger at the very next open). Observers
// are notified synchronously in registration order; the first error any
// observer returns is captured and returned after every observer has run.
func (o *Order) MarkExecuted(fillAt time.Time, fillPrice decimal.Decimal) error {
	if o.state != Pending {
		return fmt.Errorf("order %d: %w", o.ID, errs.ErrOrderAlreadyTerminal)
	}

	minOK := fillAt.After(o.OrderAt)
	if o.Kind.IsMarket() && !fillAt.Before(o.OrderAt) {
		minOK = true
	}
	if !minOK {
		return fmt.Errorf("order %d: fill time %s not after order time %s: %w", o.ID, fillAt, o.OrderAt, errs.ErrOrderNotExecuted)
	}

	if err := o.validateFill(fillPrice); err != nil {
		return err
	}

	o.state = Executed
	o.fillAt = fillAt
	o.fillPx = fillPrice
	return o.notify(true)
}

// MarkCanceled transitions Pending -> Canceled. Idempotent re-cancellation
// is rejected the same as re-execution.
func (o *Order) MarkCanceled() error {
	if o.state != Pending {
		return fmt.Errorf("order %d: %w", o.ID, errs.ErrOrderAlreadyTerminal)
	}
	o.state = Canceled
	return o.notify(false)
}

// Clone returns a copy of the order with its observer list cleared. The
// broker uses this when snapshotting state for a parallel run: the clone
// must be re-registered with the new broker instance rather than silently
// keep notifying the original one.
func (o *Order) Clone() *Order {
	cp := *o
	cp.observers = nil
	return &cp
}

func (o *Order) notify(executed bool) error {
	var firstErr error
	for _, obs := range o.observers {
		var err error
		if executed {
			err = obs.OrderExecuted(o)
		} else {
			err = obs.OrderCanceled(o)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
