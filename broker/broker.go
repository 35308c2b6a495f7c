// Package broker is the mediator a strategy submits orders through: it
// owns one dispatcher and one InstrumentPosition per symbol, the shared
// transaction manager, and the tick policy used to round computed
// limit/stop prices. It implements order.Observer so that a fill or
// cancellation updates positions and transactions without the strategy
// having to do that bookkeeping itself.
package broker

import (
	"fmt"
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/evdnx/backtestcore/dispatcher"
	"github.com/evdnx/backtestcore/errs"
	"github.com/evdnx/backtestcore/logger"
	"github.com/evdnx/backtestcore/metrics"
	"github.com/evdnx/backtestcore/order"
	"github.com/evdnx/backtestcore/position"
	"github.com/evdnx/backtestcore/tick"
	"github.com/evdnx/backtestcore/transaction"
	"github.com/shopspring/decimal"
)

// Broker mediates between a strategy and the market-simulation primitives
// for every symbol in one portfolio. It is not safe for concurrent use
// from more than one goroutine; parallel backtests each get their own
// Broker instance (see backtester.RunMany).
type Broker struct {
	Portfolio  *bar.Portfolio
	TickPolicy tick.Policy

	// Log receives one entry per fill and per cancellation, mirroring the
	// teacher's submitOrder logging; defaults to a no-op logger so callers
	// that never set it pay nothing for the plumbing.
	Log logger.Logger

	dispatchers map[string]*dispatcher.Dispatcher
	positions   map[string]*position.InstrumentPosition
	txManager   *transaction.Manager

	// pendingUnit remembers, per pending entry order id, the direction the
	// resulting unit should open in, so OrderExecuted can open the right
	// side without re-deriving it from order.Kind in more than one place.
	pendingUnit map[uint64]position.Direction
}

// New returns a broker over portfolio, defaulting to the NoFractions tick
// policy. Callers that need legacy/sub-penny rounding set TickPolicy
// directly after construction.
func New(portfolio *bar.Portfolio) (*Broker, error) {
	if portfolio == nil {
		return nil, fmt.Errorf("new broker: nil portfolio: %w", errs.ErrBrokerConfig)
	}
	return &Broker{
		Portfolio:   portfolio,
		TickPolicy:  tick.NoFractions{},
		Log:         logger.NewNoop(),
		dispatchers: make(map[string]*dispatcher.Dispatcher),
		positions:   make(map[string]*position.InstrumentPosition),
		txManager:   transaction.NewManager(),
		pendingUnit: make(map[uint64]position.Direction),
	}, nil
}

func (b *Broker) dispatcherFor(symbol string) *dispatcher.Dispatcher {
	d, ok := b.dispatchers[symbol]
	if !ok {
		d = dispatcher.New(symbol)
		b.dispatchers[symbol] = d
	}
	return d
}

// PositionFor returns the InstrumentPosition for symbol, creating a flat
// one in dir if none exists yet.
func (b *Broker) PositionFor(symbol string, dir position.Direction) *position.InstrumentPosition {
	p, ok := b.positions[symbol]
	if !ok {
		p = position.NewInstrumentPosition(symbol, dir)
		b.positions[symbol] = p
	}
	return p
}

// Transactions returns the shared transaction manager.
func (b *Broker) Transactions() *transaction.Manager { return b.txManager }

func (b *Broker) submit(o *order.Order) *order.Order {
	o.AddObserver(b)
	b.dispatcherFor(o.Symbol).Submit(o)
	return o
}

// RoundToTick rounds price to the effective tick for symbol at time at,
// per the broker's active TickPolicy. exitUnitAt passes every limit/stop
// exit price through it before building the order, so the rounding rule
// stays centralized in one place.
func (b *Broker) RoundToTick(symbol string, at time.Time, price decimal.Decimal) (decimal.Decimal, error) {
	sec := b.Portfolio.Find(symbol)
	if sec == nil {
		return decimal.Zero, fmt.Errorf("symbol %s: not in portfolio: %w", symbol, errs.ErrBrokerConfig)
	}
	t := b.TickPolicy.EffectiveTick(at, sec)
	return tick.RoundHalfUp(price, t), nil
}

// --- Entries ---------------------------------------------------------

func (b *Broker) enter(symbol string, dir position.Direction, units int, at time.Time, stopLossPct, profitTargetPct decimal.Decimal) (*order.Order, error) {
	if units <= 0 {
		return nil, fmt.Errorf("symbol %s: %w", symbol, errs.ErrOrderConstructionInvalid)
	}
	if existing, ok := b.positions[symbol]; ok && !existing.IsFlat() && existing.Direction != dir {
		return nil, fmt.Errorf("symbol %s: %w", symbol, errs.ErrDirectionConflict)
	}
	kind := order.MarketEntryLong
	if dir == position.Short {
		kind = order.MarketEntryShort
	}
	o, err := order.New(symbol, kind, units, at)
	if err != nil {
		return nil, err
	}
	o.WithEntryRisk(stopLossPct, profitTargetPct)
	b.pendingUnit[o.ID] = dir
	return b.submit(o), nil
}

// EnterLongOnOpen submits a market entry order that opens (or pyramids
// into) a long position in symbol, to fill at the next bar's open.
func (b *Broker) EnterLongOnOpen(symbol string, units int, at time.Time, stopLossPct, profitTargetPct decimal.Decimal) (*order.Order, error) {
	return b.enter(symbol, position.Long, units, at, stopLossPct, profitTargetPct)
}

// EnterShortOnOpen is the short-side analogue of EnterLongOnOpen.
func (b *Broker) EnterShortOnOpen(symbol string, units int, at time.Time, stopLossPct, profitTargetPct decimal.Decimal) (*order.Order, error) {
	return b.enter(symbol, position.Short, units, at, stopLossPct, profitTargetPct)
}

// --- Exits: whole-position, market ------------------------------------

func (b *Broker) exitAllUnitsOnOpen(symbol string, dir position.Direction, at time.Time) ([]*order.Order, error) {
	p := b.PositionFor(symbol, dir)
	open := p.OpenUnits()
	orders := make([]*order.Order, 0, len(open))
	for _, u := range open {
		o, err := b.exitUnitOnOpen(symbol, dir, u.UnitNumber, at)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ExitLongAllUnitsOnOpen submits one market exit order per currently open
// long unit in symbol, each targeting that specific unit.
func (b *Broker) ExitLongAllUnitsOnOpen(symbol string, at time.Time) ([]*order.Order, error) {
	return b.exitAllUnitsOnOpen(symbol, position.Long, at)
}

// ExitShortAllUnitsOnOpen is the short-side analogue.
func (b *Broker) ExitShortAllUnitsOnOpen(symbol string, at time.Time) ([]*order.Order, error) {
	return b.exitAllUnitsOnOpen(symbol, position.Short, at)
}

func (b *Broker) exitUnitOnOpen(symbol string, dir position.Direction, unitNumber int, at time.Time) (*order.Order, error) {
	p := b.PositionFor(symbol, dir)
	u := p.UnitByNumber(unitNumber)
	if u == nil {
		return nil, fmt.Errorf("symbol %s: %w", symbol, errs.ErrUnknownUnit)
	}
	kind := order.MarketExitSell
	if dir == position.Short {
		kind = order.MarketExitCover
	}
	o, err := order.New(symbol, kind, u.Units, at)
	if err != nil {
		return nil, err
	}
	o.WithTargetUnit(u.ID)
	return b.submit(o), nil
}

// ExitLongUnitOnOpen submits a market exit order for one specific open
// long unit. Fails with ErrUnknownUnit if unitNumber is not currently open.
func (b *Broker) ExitLongUnitOnOpen(symbol string, unitNumber int, at time.Time) (*order.Order, error) {
	return b.exitUnitOnOpen(symbol, position.Long, unitNumber, at)
}

// ExitShortUnitOnOpen is the short-side analogue.
func (b *Broker) ExitShortUnitOnOpen(symbol string, unitNumber int, at time.Time) (*order.Order, error) {
	return b.exitUnitOnOpen(symbol, position.Short, unitNumber, at)
}

// --- Exits: single unit, limit/stop at an absolute price --------------

func (b *Broker) exitUnitAt(symbol string, dir position.Direction, unitNumber int, at time.Time, price decimal.Decimal, trigger string) (*order.Order, error) {
	p := b.PositionFor(symbol, dir)
	u := p.UnitByNumber(unitNumber)
	if u == nil {
		return nil, fmt.Errorf("symbol %s: %w", symbol, errs.ErrUnknownUnit)
	}
	rounded, err := b.RoundToTick(symbol, at, price)
	if err != nil {
		return nil, err
	}
	kind := kindFor(dir, trigger)
	o, err := order.New(symbol, kind, u.Units, at)
	if err != nil {
		return nil, err
	}
	o.WithTargetUnit(u.ID)
	if trigger == "limit" {
		o.WithLimitPrice(rounded)
	} else {
		o.WithStopPrice(rounded)
	}
	return b.submit(o), nil
}

func kindFor(dir position.Direction, trigger string) order.Kind {
	switch {
	case trigger == "limit" && dir == position.Long:
		return order.LimitExitSell
	case trigger == "limit" && dir == position.Short:
		return order.LimitExitCover
	case trigger == "stop" && dir == position.Long:
		return order.StopExitSell
	default:
		return order.StopExitCover
	}
}

// ExitLongUnitAtLimit submits a limit exit for one open long unit at an
// absolute price, rounded to the security's effective tick.
func (b *Broker) ExitLongUnitAtLimit(symbol string, unitNumber int, at time.Time, limitPrice decimal.Decimal) (*order.Order, error) {
	return b.exitUnitAt(symbol, position.Long, unitNumber, at, limitPrice, "limit")
}

// ExitShortUnitAtLimit is the short-side analogue.
func (b *Broker) ExitShortUnitAtLimit(symbol string, unitNumber int, at time.Time, limitPrice decimal.Decimal) (*order.Order, error) {
	return b.exitUnitAt(symbol, position.Short, unitNumber, at, limitPrice, "limit")
}

// ExitLongUnitAtStop submits a stop exit for one open long unit at an
// absolute price, rounded to the security's effective tick.
func (b *Broker) ExitLongUnitAtStop(symbol string, unitNumber int, at time.Time, stopPrice decimal.Decimal) (*order.Order, error) {
	return b.exitUnitAt(symbol, position.Long, unitNumber, at, stopPrice, "stop")
}

// ExitShortUnitAtStop is the short-side analogue.
func (b *Broker) ExitShortUnitAtStop(symbol string, unitNumber int, at time.Time, stopPrice decimal.Decimal) (*order.Order, error) {
	return b.exitUnitAt(symbol, position.Short, unitNumber, at, stopPrice, "stop")
}

// --- Exits: whole position, limit/stop ---------------------------------

func (b *Broker) exitAllUnitsAt(symbol string, dir position.Direction, at time.Time, price decimal.Decimal, trigger string) ([]*order.Order, error) {
	p := b.PositionFor(symbol, dir)
	open := p.OpenUnits()
	orders := make([]*order.Order, 0, len(open))
	for _, u := range open {
		o, err := b.exitUnitAt(symbol, dir, u.UnitNumber, at, price, trigger)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ExitLongAllUnitsAtLimit submits one limit exit order per open long unit
// at the same absolute price.
func (b *Broker) ExitLongAllUnitsAtLimit(symbol string, at time.Time, limitPrice decimal.Decimal) ([]*order.Order, error) {
	return b.exitAllUnitsAt(symbol, position.Long, at, limitPrice, "limit")
}

// ExitShortAllUnitsAtLimit is the short-side analogue.
func (b *Broker) ExitShortAllUnitsAtLimit(symbol string, at time.Time, limitPrice decimal.Decimal) ([]*order.Order, error) {
	return b.exitAllUnitsAt(symbol, position.Short, at, limitPrice, "limit")
}

// ExitLongAllUnitsAtStop submits one stop exit order per open long unit at
// the same absolute price.
func (b *Broker) ExitLongAllUnitsAtStop(symbol string, at time.Time, stopPrice decimal.Decimal) ([]*order.Order, error) {
	return b.exitAllUnitsAt(symbol, position.Long, at, stopPrice, "stop")
}

// ExitShortAllUnitsAtStop is the short-side analogue.
func (b *Broker) ExitShortAllUnitsAtStop(symbol string, at time.Time, stopPrice decimal.Decimal) ([]*order.Order, error) {
	return b.exitAllUnitsAt(symbol, position.Short, at, stopPrice, "stop")
}

// ExitLongAllUnitsAtLimitPct submits one limit exit order per open long
// unit at refPrice scaled by (1+pct) — a profit target above a shared
// reference price, rounded to tick.
func (b *Broker) ExitLongAllUnitsAtLimitPct(symbol string, at time.Time, refPrice, pct decimal.Decimal) ([]*order.Order, error) {
	return b.exitAllUnitsAt(symbol, position.Long, at, refPrice.Add(refPrice.Mul(pct)), "limit")
}

// ExitShortAllUnitsAtLimitPct is the short-side analogue: refPrice scaled
// by (1-pct).
func (b *Broker) ExitShortAllUnitsAtLimitPct(symbol string, at time.Time, refPrice, pct decimal.Decimal) ([]*order.Order, error) {
	return b.exitAllUnitsAt(symbol, position.Short, at, refPrice.Sub(refPrice.Mul(pct)), "limit")
}

// ExitLongAllUnitsAtStopPct submits one stop exit order per open long unit
// at refPrice scaled by (1-pct) — a stop-loss below a shared reference
// price, rounded to tick.
func (b *Broker) ExitLongAllUnitsAtStopPct(symbol string, at time.Time, refPrice, pct decimal.Decimal) ([]*order.Order, error) {
	return b.exitAllUnitsAt(symbol, position.Long, at, refPrice.Sub(refPrice.Mul(pct)), "stop")
}

// ExitShortAllUnitsAtStopPct is the short-side analogue: refPrice scaled
// by (1+pct).
func (b *Broker) ExitShortAllUnitsAtStopPct(symbol string, at time.Time, refPrice, pct decimal.Decimal) ([]*order.Order, error) {
	return b.exitAllUnitsAt(symbol, position.Short, at, refPrice.Add(refPrice.Mul(pct)), "stop")
}

// HasPendingExit reports whether symbol already has a pending exit order
// targeting the unit with the given stable ID, so a strategy's per-bar
// exit submission stays idempotent instead of stacking a fresh limit/stop
// pair on top of one still working from an earlier bar.
func (b *Broker) HasPendingExit(symbol string, unitID int) bool {
	for _, o := range b.dispatcherFor(symbol).Pending() {
		if o.Kind.IsExit() && o.TargetUnit == unitID {
			return true
		}
	}
	return false
}

// AppendBarToOpenUnits records b in the history of every currently open
// unit on symbol, across whichever direction is currently held. Called
// once per bar per symbol from the strategy's updateBarNumber hook so the
// return extractor can later reconstruct each unit's per-bar returns.
func (b *Broker) AppendBarToOpenUnits(symbol string, bar bar.PriceBar) {
	if p, ok := b.positions[symbol]; ok {
		for _, u := range p.OpenUnits() {
			u.AppendBar(bar)
		}
	}
}

// CancelPending cancels every listed order that is still pending on
// symbol's dispatcher; nothing in the broker calls it on its own.
func (b *Broker) CancelPending(symbol string, orders ...*order.Order) {
	d := b.dispatcherFor(symbol)
	for _, o := range orders {
		d.Cancel(o)
	}
}

// ProcessPendingOrders resolves every pending order on symbol against bar
// in the dispatcher's fixed phase order, canceling any exit whose target
// unit is already closed before evaluating its fill predicate. Callers
// typically invoke this once per symbol per unified timestamp from the
// driver loop.
func (b *Broker) ProcessPendingOrders(symbol string, bar bar.PriceBar) []dispatcher.Result {
	flat := func(o *order.Order) bool {
		dir := position.Long
		if o.Kind.IsShort() {
			dir = position.Short
		}
		p, ok := b.positions[symbol]
		if !ok {
			return true
		}
		if o.TargetUnit != 0 {
			return p.UnitByID(o.TargetUnit) == nil
		}
		return p.Direction != dir || p.IsFlat()
	}
	return b.dispatcherFor(symbol).ProcessBar(bar, flat)
}

// OrderExecuted implements order.Observer. An executed entry opens a new
// position unit and a new transaction; an executed exit closes the unit
// it targeted and completes its transaction.
func (b *Broker) OrderExecuted(o *order.Order) error {
	metrics.OrdersFilled.WithLabelValues(o.Symbol, o.Kind.String()).Inc()
	b.Log.Info("order_filled",
		logger.String("symbol", o.Symbol),
		logger.String("kind", o.Kind.String()),
		logger.Int("id", int(o.ID)))
	var err error
	if o.Kind.IsEntry() {
		err = b.onEntryFilled(o)
	} else {
		err = b.onExitFilled(o)
	}
	if err != nil {
		b.Log.Error("order_fill_bookkeeping_failed",
			logger.String("symbol", o.Symbol),
			logger.String("kind", o.Kind.String()),
			logger.Err(err))
	}
	return err
}

// OrderCanceled implements order.Observer; cancellation requires no
// position/transaction bookkeeping since the order never filled.
func (b *Broker) OrderCanceled(o *order.Order) error {
	metrics.OrdersCanceled.WithLabelValues(o.Symbol, o.Kind.String()).Inc()
	b.Log.Warn("order_canceled",
		logger.String("symbol", o.Symbol),
		logger.String("kind", o.Kind.String()),
		logger.Int("id", int(o.ID)))
	delete(b.pendingUnit, o.ID)
	return nil
}

func (b *Broker) onEntryFilled(o *order.Order) error {
	dir := b.pendingUnit[o.ID]
	delete(b.pendingUnit, o.ID)

	p := b.PositionFor(o.Symbol, dir)
	unit := p.OpenUnit(o.FillPrice(), o.FillTime(), o.Units)
	if sec := b.Portfolio.Find(o.Symbol); sec != nil && sec.Series != nil {
		if entryBar, ok := sec.Series.BarAt(o.FillTime()); ok {
			unit.AppendBar(entryBar)
		}
	}

	if !o.StopLossPct.IsZero() {
		delta := o.FillPrice().Mul(o.StopLossPct)
		stop := o.FillPrice().Sub(delta)
		if dir == position.Short {
			stop = o.FillPrice().Add(delta)
		}
		unit.SetStop(stop)
	}
	if !o.ProfitTargetPct.IsZero() {
		delta := o.FillPrice().Mul(o.ProfitTargetPct)
		target := o.FillPrice().Add(delta)
		if dir == position.Short {
			target = o.FillPrice().Sub(delta)
		}
		unit.SetProfitTarget(target)
	}

	tx, err := transaction.NewTransaction(o, unit, o.Symbol, dir)
	if err != nil {
		return err
	}
	metrics.UnitsOpen.WithLabelValues(o.Symbol).Set(float64(p.NumOpenUnits()))
	if err := b.txManager.Add(tx); err != nil {
		return err
	}
	metrics.TransactionsOpen.Set(float64(len(b.txManager.Open())))
	return nil
}

func (b *Broker) onExitFilled(o *order.Order) error {
	dir := position.Long
	if o.Kind.IsShort() {
		dir = position.Short
	}
	p := b.PositionFor(o.Symbol, dir)

	var unit *position.PositionUnit
	if o.TargetUnit != 0 {
		unit = p.UnitByID(o.TargetUnit)
	} else if open := p.OpenUnits(); len(open) > 0 {
		unit = open[0] // FIFO fallback for exits not tied to a specific unit
	}
	if unit == nil {
		return fmt.Errorf("symbol %s: %w", o.Symbol, errs.ErrPositionFlat)
	}

	positionID := unit.ID
	if err := p.CloseUnit(unit.UnitNumber, o.FillPrice(), o.FillTime()); err != nil {
		return err
	}
	tx := b.txManager.Find(o.Symbol, positionID)
	if tx == nil {
		return fmt.Errorf("symbol %s unit %d: no open transaction: %w", o.Symbol, positionID, errs.ErrTransactionInvariantViolation)
	}
	if err := tx.Complete(o); err != nil {
		return err
	}
	metrics.UnitsOpen.WithLabelValues(o.Symbol).Set(float64(p.NumOpenUnits()))
	metrics.TransactionsCompleted.Inc()
	metrics.TransactionsOpen.Set(float64(len(b.txManager.Open())))
	return nil
}

// Clone returns an independent broker over the same portfolio: every
// pending order, position unit, and transaction is deep-copied, and every
// cloned pending order is re-registered with the clone as its observer so
// fills against the copy update the copy's own positions and transactions
// rather than reaching back into the original broker.
func (b *Broker) Clone() *Broker {
	log := b.Log
	if log == nil {
		log = logger.NewNoop()
	}
	cp := &Broker{
		Portfolio:   b.Portfolio,
		TickPolicy:  b.TickPolicy,
		Log:         log,
		dispatchers: make(map[string]*dispatcher.Dispatcher, len(b.dispatchers)),
		positions:   make(map[string]*position.InstrumentPosition, len(b.positions)),
		txManager:   transaction.NewManager(),
		pendingUnit: make(map[uint64]position.Direction, len(b.pendingUnit)),
	}

	for symbol, src := range b.dispatchers {
		d := dispatcher.New(symbol)
		for _, o := range src.Pending() {
			clone := o.Clone()
			clone.AddObserver(cp)
			d.Submit(clone)
			if dir, ok := b.pendingUnit[o.ID]; ok {
				cp.pendingUnit[clone.ID] = dir
			}
		}
		cp.dispatchers[symbol] = d
	}

	for symbol, p := range b.positions {
		cp.positions[symbol] = p.Clone()
	}

	// Re-point each cloned transaction at the cloned position's own unit
	// object rather than the source broker's, so continued simulation on
	// either broker mutates only its own unit history and never the other's.
	for _, tx := range b.txManager.All() {
		txClone := tx.Clone()
		if clonedPos := cp.positions[tx.Symbol]; clonedPos != nil {
			if u := clonedPos.UnitByIDAny(tx.PositionID); u != nil {
				txClone.Unit = u
			}
		}
		_ = cp.txManager.Add(txClone)
	}

	return cp
}
