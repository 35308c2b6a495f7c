// Package stats computes the trade-level statistics the result query
// surface exposes per strategy: profit factor, the win rate required to
// break even at that profit factor, estimated annualized trade count, and
// the longest run of consecutive losing trades. These are plain functions
// that strategy.Strategy calls directly; there is no policy hook through
// which the backtester or a strategy can substitute other definitions.
package stats

import (
	"time"

	"github.com/evdnx/backtestcore/errs"
	"github.com/evdnx/backtestcore/position"
	"github.com/evdnx/backtestcore/transaction"
	"github.com/shopspring/decimal"
)

// daysPerYear is the Gregorian average used for calendar-duration based
// annualization, matching the design's explicit 365.25 figure.
const daysPerYear = 365.25

// TradePnL returns the signed profit or loss of a completed transaction's
// unit: (exit-entry) for a long, negated for a short, scaled by share
// count. Open transactions return zero since they have no realized P&L.
func TradePnL(t *transaction.Transaction) decimal.Decimal {
	if t.Unit == nil || t.Unit.IsOpen() {
		return decimal.Zero
	}
	pnl := t.Unit.ExitPrice.Sub(t.Unit.EntryPrice).Mul(decimal.NewFromInt(int64(t.Unit.Units)))
	if t.Direction == position.Short {
		pnl = pnl.Neg()
	}
	return pnl
}

// ProfitFactor is the ratio of gross profit to gross loss across every
// completed transaction. Returns zero (not an error) when there were no
// losing trades to divide by, since a strategy with zero losses has no
// well-defined finite profit factor but is clearly not the failure case
// callers care about.
func ProfitFactor(txs []*transaction.Transaction) decimal.Decimal {
	grossProfit, grossLoss := decimal.Zero, decimal.Zero
	for _, t := range txs {
		if !t.IsComplete() {
			continue
		}
		pnl := TradePnL(t)
		switch {
		case pnl.IsPositive():
			grossProfit = grossProfit.Add(pnl)
		case pnl.IsNegative():
			grossLoss = grossLoss.Add(pnl.Abs())
		}
	}
	if grossLoss.IsZero() {
		return decimal.Zero
	}
	return grossProfit.Div(grossLoss)
}

// RequiredWinRate returns the win rate needed to break even given the
// average win size and average loss size implied by profitFactor: for a
// profit factor pf, breakeven win rate is 1/(1+pf). A zero profit factor
// (no losses recorded) returns zero since no win rate is required to break
// even.
func RequiredWinRate(profitFactor decimal.Decimal) decimal.Decimal {
	if profitFactor.IsZero() {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	return one.Div(one.Add(profitFactor))
}

// ConsecutiveLosses returns the longest run of back-to-back losing trades
// among completed transactions, walked in the order txs are given.
func ConsecutiveLosses(txs []*transaction.Transaction) int {
	longest, current := 0, 0
	for _, t := range txs {
		if !t.IsComplete() {
			continue
		}
		if TradePnL(t).IsNegative() {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}

// EstimatedAnnualizedTrades extrapolates the observed trade count over
// [start,end] to a full year using the 365.25-day convention. Fails with
// ErrZeroDuration when the range has no length, since the extrapolation
// is undefined at that limit.
func EstimatedAnnualizedTrades(tradeCount int, start, end time.Time) (decimal.Decimal, error) {
	dur := end.Sub(start)
	if dur <= 0 {
		return decimal.Zero, errs.ErrZeroDuration
	}
	years := decimal.NewFromFloat(dur.Hours() / 24 / daysPerYear)
	return decimal.NewFromInt(int64(tradeCount)).Div(years), nil
}
