// Package dispatcher holds the pending orders for one symbol and resolves
// them against a bar in the fixed phase order the design requires: market
// exits, then market entries, then stop exits, then limit exits. Within a
// phase, orders are walked in submission order. Pending exposes a lazily
// rebuilt view of all pending orders sorted by order id, matching the
// original TradingOrderManager's dirty-flag multimap.
package dispatcher

import (
	"sort"

	"github.com/evdnx/backtestcore/bar"
	"github.com/evdnx/backtestcore/order"
)

// Outcome is the per-order result of one processPendingOrders pass.
type Outcome int

const (
	// StillPending: the order was skipped this pass because no bar data
	// exists yet for its symbol at this timestamp. ProcessBar itself is
	// only ever invoked once a bar exists (see Broker.ProcessPendingOrders),
	// so this outcome never arises from ProcessBar; it is reserved for a
	// caller that consults the dispatcher before confirming bar data is
	// present.
	StillPending Outcome = iota
	// Filled: the order executed at the price FillPredicate produced.
	Filled
	// Canceled: the order triggered against the bar but its side-specific
	// price validation failed (degenerate clock skew between the fill
	// predicate's trigger test and MarkExecuted's own check); the order is
	// an exit targeting a position that is already flat; or the order's
	// fill predicate simply did not trigger against this bar. Every pending
	// order is resolved — filled or canceled — exactly once per bar it
	// sees; a strategy that wants a limit/stop to keep working re-submits
	// it next bar (see strategy.Strategy.submitUnitExits).
	Canceled
)

// FlatChecker reports whether the position an exit order would close is
// already flat. The dispatcher consults it before evaluating an exit
// order's fill predicate so a stale exit order (its unit already closed by
// an earlier fill this same bar, or by a different order entirely) is
// canceled rather than mis-filled against a position with nothing left to
// close. Entry orders are never asked.
type FlatChecker func(o *order.Order) bool

// Result pairs a processed order with its outcome for one bar.
type Result struct {
	Order   *order.Order
	Outcome Outcome
}

// Dispatcher holds one symbol's pending orders across the eight kinds,
// split into separate slices so each processing phase only walks its own
// kind instead of filtering a single mixed list every bar.
type Dispatcher struct {
	Symbol string

	marketEntries []*order.Order
	marketExits   []*order.Order
	stopExits     []*order.Order
	limitExits    []*order.Order

	dirty  bool
	sorted []*order.Order
}

// New returns an empty dispatcher for symbol.
func New(symbol string) *Dispatcher {
	return &Dispatcher{Symbol: symbol}
}

// Submit adds a pending order to its kind's bucket. Orders must be Pending
// and belong to this dispatcher's symbol; callers are expected to have
// validated that already (the broker is the only caller).
func (d *Dispatcher) Submit(o *order.Order) {
	switch {
	case o.Kind.IsEntry():
		d.marketEntries = append(d.marketEntries, o)
	case o.Kind == order.MarketExitSell, o.Kind == order.MarketExitCover:
		d.marketExits = append(d.marketExits, o)
	case o.Kind.IsStop():
		d.stopExits = append(d.stopExits, o)
	case o.Kind.IsLimit():
		d.limitExits = append(d.limitExits, o)
	}
	d.dirty = true
}

// Cancel marks a pending order canceled and drops it from its bucket.
// Returns false if the order was not found pending in this dispatcher.
func (d *Dispatcher) Cancel(o *order.Order) bool {
	buckets := []*[]*order.Order{&d.marketEntries, &d.marketExits, &d.stopExits, &d.limitExits}
	for _, b := range buckets {
		for i, cand := range *b {
			if cand == o {
				*b = append((*b)[:i], (*b)[i+1:]...)
				d.dirty = true
				_ = o.MarkCanceled()
				return true
			}
		}
	}
	return false
}

// Pending returns every pending order across all kinds, sorted by id — the
// lazily rebuilt view the original dispatcher exposed for inspection.
func (d *Dispatcher) Pending() []*order.Order {
	if !d.dirty && d.sorted != nil {
		return d.sorted
	}
	all := make([]*order.Order, 0, len(d.marketEntries)+len(d.marketExits)+len(d.stopExits)+len(d.limitExits))
	all = append(all, d.marketExits...)
	all = append(all, d.marketEntries...)
	all = append(all, d.stopExits...)
	all = append(all, d.limitExits...)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	d.sorted = all
	d.dirty = false
	return d.sorted
}

// ProcessBar resolves every pending order against b in the fixed phase
// order: market exits, market entries, stop exits, limit exits. flat
// reports, for an exit order, whether its target position is already
// closed; it is consulted before the fill predicate so a same-bar
// already-flat exit is canceled instead of mis-applied. Every order seen
// this pass is removed from its bucket — filled, or canceled when it
// doesn't trigger — matching the original's erase-every-order-each-bar
// semantics; a still-wanted limit/stop is re-submitted by the strategy on
// the next bar rather than left resting in the dispatcher.
func (d *Dispatcher) ProcessBar(b bar.PriceBar, flat FlatChecker) []Result {
	var results []Result

	process := func(bucket *[]*order.Order) {
		for _, o := range *bucket {
			if o.Kind.IsExit() && flat != nil && flat(o) {
				_ = o.MarkCanceled()
				results = append(results, Result{Order: o, Outcome: Canceled})
				continue
			}

			price, triggers := o.FillPredicate(b)
			if !triggers {
				_ = o.MarkCanceled()
				results = append(results, Result{Order: o, Outcome: Canceled})
				continue
			}
			if err := o.MarkExecuted(b.Timestamp, price); err != nil {
				_ = o.MarkCanceled()
				results = append(results, Result{Order: o, Outcome: Canceled})
				continue
			}
			results = append(results, Result{Order: o, Outcome: Filled})
		}
		*bucket = (*bucket)[:0]
	}

	process(&d.marketExits)
	process(&d.marketEntries)
	process(&d.stopExits)
	process(&d.limitExits)

	d.dirty = true
	return results
}

// Len returns the total number of pending orders across all kinds.
func (d *Dispatcher) Len() int {
	return len(d.marketEntries) + len(d.marketExits) + len(d.stopExits) + len(d.limitExits)
}
