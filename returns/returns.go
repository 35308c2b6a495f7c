// Package returns reconstructs per-bar fractional return series from a
// strategy's transactions, for downstream statistical tests (bootstrap,
// permutation, Monte Carlo) that need a flat sequence of bar returns
// rather than trade-level P&L. Both closed trades and any still-open
// positions contribute: an open position's unrealized bars count exactly
// like a closed trade's, up to the latest bar observed.
package returns

import (
	"time"

	"github.com/evdnx/backtestcore/position"
	"github.com/evdnx/backtestcore/transaction"
	"github.com/shopspring/decimal"
)

// TimestampedBar pairs a bar's timestamp with its fractional return.
type TimestampedBar struct {
	Timestamp time.Time
	Return    decimal.Decimal
}

// ExpandedBar reports the four component returns the design's expanded
// variant requires, alongside the timestamp each belongs to.
type ExpandedBar struct {
	Timestamp     time.Time
	CloseToClose  decimal.Decimal
	OpenToClose   decimal.Decimal
	HighToOpen    decimal.Decimal
	LowToOpen     decimal.Decimal
}

// signedReturn computes (cur-ref)/ref, negated for a short position, and
// returns zero (never an error) when ref is zero: this is stochastic
// reconstruction of historical behavior, not input validation, so a
// degenerate reference price simply contributes no information rather
// than aborting the whole series.
func signedReturn(cur, ref decimal.Decimal, dir position.Direction) decimal.Decimal {
	if ref.IsZero() {
		return decimal.Zero
	}
	r := cur.Sub(ref).Div(ref)
	if dir == position.Short {
		r = r.Neg()
	}
	return r
}

// unitReturns walks one unit's bar history and yields its per-bar
// fractional returns: the entry bar's reference is the entry price
// itself, every subsequent bar's reference is the previous bar's close.
func unitReturns(u *position.PositionUnit, dir position.Direction) []TimestampedBar {
	hist := u.History
	out := make([]TimestampedBar, 0, len(hist))
	for i, b := range hist {
		ref := u.EntryPrice
		if i > 0 {
			ref = hist[i-1].Close
		}
		out = append(out, TimestampedBar{Timestamp: b.Timestamp, Return: signedReturn(b.Close, ref, dir)})
	}
	return out
}

// Flat returns the concatenated per-bar return series across every
// transaction's unit, closed and open alike, in transaction entry-date
// order. This is the series a bootstrap/permutation test consumes.
func Flat(txs []*transaction.Transaction) []decimal.Decimal {
	sorted := sortedByEntry(txs)
	out := make([]decimal.Decimal, 0)
	for _, t := range sorted {
		if t.Unit == nil {
			continue
		}
		for _, tb := range unitReturns(t.Unit, t.Direction) {
			out = append(out, tb.Return)
		}
	}
	return out
}

// Timestamped is Flat's timestamp-carrying counterpart.
func Timestamped(txs []*transaction.Transaction) []TimestampedBar {
	sorted := sortedByEntry(txs)
	out := make([]TimestampedBar, 0)
	for _, t := range sorted {
		if t.Unit == nil {
			continue
		}
		out = append(out, unitReturns(t.Unit, t.Direction)...)
	}
	return out
}

// Expanded reports, per bar, close-to-close, open-to-close, high-to-open,
// and low-to-open returns, skipping bars whose prior close is zero (the
// design's "skips bars with zero prior close" edge case — unlike Flat,
// this variant drops the bar entirely rather than reporting a zero).
func Expanded(txs []*transaction.Transaction) []ExpandedBar {
	sorted := sortedByEntry(txs)
	out := make([]ExpandedBar, 0)
	for _, t := range sorted {
		if t.Unit == nil {
			continue
		}
		hist := t.Unit.History
		for i, b := range hist {
			prevClose := t.Unit.EntryPrice
			if i > 0 {
				prevClose = hist[i-1].Close
			}
			if prevClose.IsZero() {
				continue
			}
			out = append(out, ExpandedBar{
				Timestamp:    b.Timestamp,
				CloseToClose: signedReturn(b.Close, prevClose, t.Direction),
				OpenToClose:  signedReturn(b.Close, b.Open, t.Direction),
				HighToOpen:   signedReturn(b.High, b.Open, t.Direction),
				LowToOpen:    signedReturn(b.Low, b.Open, t.Direction),
			})
		}
	}
	return out
}

// TotalBarsHeld sums NumBarsHeld across every transaction's unit.
func TotalBarsHeld(txs []*transaction.Transaction) int {
	total := 0
	for _, t := range txs {
		if t.Unit != nil {
			total += t.Unit.NumBarsHeld()
		}
	}
	return total
}

func sortedByEntry(txs []*transaction.Transaction) []*transaction.Transaction {
	out := append([]*transaction.Transaction(nil), txs...)
	// Insertion sort: transaction counts per strategy are small (hundreds,
	// not millions) and the input is already nearly sorted since brokers
	// append transactions in fill order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].EntryDate().Before(out[j-1].EntryDate()); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
