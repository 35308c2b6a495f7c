// Package bar holds the data model every other package builds on: price
// bars, the securities that own a time series of them, the portfolio that
// maps a symbol to a security, and the date ranges the driver walks.
package bar

import (
	"fmt"
	"sort"
	"time"

	"github.com/evdnx/backtestcore/errs"
	"github.com/shopspring/decimal"
)

// PriceBar is one OHLCV record at a given timestamp. Construction enforces
// low <= min(open,close) <= max(open,close) <= high.
type PriceBar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// NewPriceBar validates the OHLC invariant before returning a bar.
func NewPriceBar(ts time.Time, open, high, low, close, volume decimal.Decimal) (PriceBar, error) {
	lowHigh := high.GreaterThanOrEqual(maxD(open, close)) && low.LessThanOrEqual(minD(open, close))
	if !lowHigh {
		return PriceBar{}, fmt.Errorf("bar at %s: low=%s high=%s open=%s close=%s: %w",
			ts, low, high, open, close, errs.ErrBarInvariantViolation)
	}
	return PriceBar{Timestamp: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}, nil
}

func maxD(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func minD(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// TimeSeries is an append-only, timestamp-sorted sequence of bars for one
// symbol. It is the in-memory realization of the "time series store"
// external collaborator described in the spec; production systems may
// back it with a CSV loader or a database instead.
type TimeSeries struct {
	bars    []PriceBar
	byStamp map[int64]int // UnixNano -> index, for O(1) exact lookup
}

// NewTimeSeries builds a series from bars already in ascending timestamp
// order; it does not sort them, since most ingestion pipelines already
// hand over sorted data and an unexpected re-sort would hide bugs upstream.
func NewTimeSeries(bars []PriceBar) *TimeSeries {
	ts := &TimeSeries{bars: bars, byStamp: make(map[int64]int, len(bars))}
	for i, b := range bars {
		ts.byStamp[b.Timestamp.UnixNano()] = i
	}
	return ts
}

// Append adds a bar, preserving ascending order (callers are expected to
// append in timestamp order; this is not re-validated here).
func (s *TimeSeries) Append(b PriceBar) {
	s.byStamp[b.Timestamp.UnixNano()] = len(s.bars)
	s.bars = append(s.bars, b)
}

// Bars returns every bar in ascending timestamp order.
func (s *TimeSeries) Bars() []PriceBar {
	return s.bars
}

// BarAt looks up the bar with an exact timestamp match. A miss is expected
// and not an error — callers skip orders with no data on that bar.
func (s *TimeSeries) BarAt(t time.Time) (PriceBar, bool) {
	idx, ok := s.byStamp[t.UnixNano()]
	if !ok {
		return PriceBar{}, false
	}
	return s.bars[idx], true
}

// Len returns the number of bars in the series.
func (s *TimeSeries) Len() int { return len(s.bars) }

// Security couples a symbol's time series with the attributes needed for
// tick rounding and P&L scaling (futures big-point value).
type Security struct {
	Symbol          string
	Series          *TimeSeries
	NativeTick      decimal.Decimal
	HalfTick        decimal.Decimal
	BigPointValue   decimal.Decimal
	IsEquity        bool
	IsSplitAdjusted bool
}

// Portfolio maps symbol to security. Securities are shared across
// strategies within one backtest; the portfolio itself is owned by the
// backtest instance that created it and must not be mutated concurrently
// from more than one backtest thread.
type Portfolio struct {
	securities map[string]*Security
	order      []string // insertion order, for deterministic iteration
}

// NewPortfolio returns an empty portfolio.
func NewPortfolio() *Portfolio {
	return &Portfolio{securities: make(map[string]*Security)}
}

// AddSecurity registers a security under its symbol, overwriting any prior
// entry for the same symbol.
func (p *Portfolio) AddSecurity(sec *Security) {
	if _, exists := p.securities[sec.Symbol]; !exists {
		p.order = append(p.order, sec.Symbol)
	}
	p.securities[sec.Symbol] = sec
}

// Find returns the security for a symbol, or nil if absent.
func (p *Portfolio) Find(symbol string) *Security {
	return p.securities[symbol]
}

// Securities returns every security in insertion order.
func (p *Portfolio) Securities() []*Security {
	out := make([]*Security, 0, len(p.order))
	for _, sym := range p.order {
		out = append(out, p.securities[sym])
	}
	return out
}

// DateRange scopes bar iteration to [Start, End], inclusive on both ends
// (the driver filters unified timestamps with this bound).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange validates Start <= End.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("date range end %s before start %s", end, start)
	}
	return DateRange{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (r DateRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Contains reports whether t falls within [Start, End].
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// UnifiedTimestamps returns the sorted, deduplicated union of every bar
// timestamp across securities that falls within the range. Securities with
// no bars in range simply contribute nothing; an empty result means the
// caller should skip the range entirely.
func UnifiedTimestamps(securities []*Security, r DateRange) []time.Time {
	seen := make(map[int64]struct{})
	for _, sec := range securities {
		if sec == nil || sec.Series == nil {
			continue
		}
		for _, b := range sec.Series.Bars() {
			if r.Contains(b.Timestamp) {
				seen[b.Timestamp.UnixNano()] = struct{}{}
			}
		}
	}
	out := make([]time.Time, 0, len(seen))
	for nano := range seen {
		out = append(out, time.Unix(0, nano))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// DefaultBarTime is the process-wide constant composed onto date-only
// timestamps so date- and datetime-parameterized operations agree.
var DefaultBarTime = 15 * time.Hour // 15:00 local, nominal market close proxy

// AtDefaultBarTime composes a date-only time.Time with DefaultBarTime,
// mirroring the legacy date-only order/position constructors.
func AtDefaultBarTime(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, date.Location()).Add(DefaultBarTime)
}
