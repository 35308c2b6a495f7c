// Package transaction ties one entry order and its eventual exit order to
// the position unit they produced, and indexes the resulting transactions
// by position id and by entry date for the broker and the statistics
// layer. Grounded on the original's StrategyTransaction/TransactionManager
// pairing: a transaction starts Open on entry fill and becomes Complete
// once its exit order fills.
package transaction

import (
	"fmt"
	"sort"
	"time"

	"github.com/evdnx/backtestcore/errs"
	"github.com/evdnx/backtestcore/order"
	"github.com/evdnx/backtestcore/position"
)

// State mirrors the two-state lifecycle of a transaction: Open while the
// position unit is still held, Complete once the exit has filled.
type State int

const (
	Open State = iota
	Complete
)

// Transaction couples one entry order with the position unit it opened
// and, once filled, the exit order that closed it. PositionID is the
// owning PositionUnit's stable ID (not its renumbered display UnitNumber,
// which shifts whenever a sibling unit closes) — unique per symbol, not
// globally.
type Transaction struct {
	PositionID int
	Symbol     string
	Direction  position.Direction

	EntryOrder *order.Order
	Unit       *position.PositionUnit
	ExitOrder  *order.Order

	state State
}

// NewTransaction opens a transaction from an already-executed entry order
// and the unit it produced. entryOrder and unit must describe the same
// fill: mismatched symbol or direction is an invariant violation.
func NewTransaction(entryOrder *order.Order, unit *position.PositionUnit, symbol string, dir position.Direction) (*Transaction, error) {
	if entryOrder.Symbol != symbol {
		return nil, fmt.Errorf("transaction for %s: entry order symbol %s: %w", symbol, entryOrder.Symbol, errs.ErrTransactionInvariantViolation)
	}
	if entryOrder.Kind.IsLong() != (dir == position.Long) {
		return nil, fmt.Errorf("transaction for %s: entry order kind %s vs direction %v: %w", symbol, entryOrder.Kind, dir, errs.ErrTransactionInvariantViolation)
	}
	if !entryOrder.IsExecuted() {
		return nil, fmt.Errorf("transaction for %s: entry order not executed: %w", symbol, errs.ErrOrderNotExecuted)
	}
	return &Transaction{
		PositionID: unit.ID,
		Symbol:     symbol,
		Direction:  dir,
		EntryOrder: entryOrder,
		Unit:       unit,
		state:      Open,
	}, nil
}

// Complete attaches the exit order that closed this transaction's unit.
func (t *Transaction) Complete(exitOrder *order.Order) error {
	if t.state == Complete {
		return fmt.Errorf("transaction %d/%s: already complete: %w", t.PositionID, t.Symbol, errs.ErrTransactionInvariantViolation)
	}
	if exitOrder.Symbol != t.Symbol {
		return fmt.Errorf("transaction %d/%s: exit order symbol %s: %w", t.PositionID, t.Symbol, exitOrder.Symbol, errs.ErrTransactionInvariantViolation)
	}
	t.ExitOrder = exitOrder
	t.state = Complete
	return nil
}

// IsOpen reports whether the transaction's unit is still held.
func (t *Transaction) IsOpen() bool { return t.state == Open }

// IsComplete reports whether the exit order has filled.
func (t *Transaction) IsComplete() bool { return t.state == Complete }

// EntryDate returns the entry order's fill time, the key the manager sorts
// transactions by.
func (t *Transaction) EntryDate() time.Time { return t.EntryOrder.FillTime() }

// Clone returns a deep-enough copy of the transaction for backtest
// snapshotting: the embedded order/unit pointers are shared (they are
// immutable once terminal) but the transaction's own state is independent.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	return &cp
}

// key uniquely identifies a transaction within a manager: symbol plus the
// position id assigned by that symbol's InstrumentPosition.
type key struct {
	symbol string
	posID  int
}

// Manager indexes transactions by (symbol, positionID) and maintains an
// entry-date-sorted view rebuilt lazily, mirroring the dispatcher's
// dirty-flag pattern so repeated lookups between insertions stay cheap.
type Manager struct {
	byKey  map[key]*Transaction
	all    []*Transaction
	sorted []*Transaction
	dirty  bool
}

// NewManager returns an empty transaction manager.
func NewManager() *Manager {
	return &Manager{byKey: make(map[key]*Transaction)}
}

// Add registers a newly opened transaction. Re-using a (symbol, positionID)
// pair still open in the manager is rejected as a duplicate.
func (m *Manager) Add(t *Transaction) error {
	k := key{t.Symbol, t.PositionID}
	if existing, ok := m.byKey[k]; ok && existing.IsOpen() {
		return fmt.Errorf("symbol %s position %d: %w", t.Symbol, t.PositionID, errs.ErrDuplicatePositionId)
	}
	m.byKey[k] = t
	m.all = append(m.all, t)
	m.dirty = true
	return nil
}

// Find returns the transaction for (symbol, positionID), or nil.
func (m *Manager) Find(symbol string, positionID int) *Transaction {
	return m.byKey[key{symbol, positionID}]
}

// All returns every transaction the manager has ever held, in insertion
// order.
func (m *Manager) All() []*Transaction { return m.all }

// Open returns every currently open transaction.
func (m *Manager) Open() []*Transaction {
	out := make([]*Transaction, 0, len(m.all))
	for _, t := range m.all {
		if t.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

// Complete returns every completed transaction.
func (m *Manager) Complete() []*Transaction {
	out := make([]*Transaction, 0, len(m.all))
	for _, t := range m.all {
		if t.IsComplete() {
			out = append(out, t)
		}
	}
	return out
}

// SortedByEntryDate rebuilds and returns the entry-date-ascending view only
// when the manager has changed since the last call.
func (m *Manager) SortedByEntryDate() []*Transaction {
	if !m.dirty && m.sorted != nil {
		return m.sorted
	}
	m.sorted = append([]*Transaction(nil), m.all...)
	sort.Slice(m.sorted, func(i, j int) bool {
		return m.sorted[i].EntryDate().Before(m.sorted[j].EntryDate())
	})
	m.dirty = false
	return m.sorted
}
