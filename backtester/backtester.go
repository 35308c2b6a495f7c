// Package backtester drives a set of strategies bar by bar over one or
// more date ranges: it builds the unified timestamp sequence from the
// union of every security's bars in range, walks it in the fixed
// sub-phase order (update bar number, exit orders, entry orders, process
// pending orders), and forces a flat-out market exit at the end of every
// range but the last so no position carries across independent ranges.
package backtester

import (
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/evdnx/backtestcore/errs"
	"github.com/evdnx/backtestcore/markethours"
	"github.com/evdnx/backtestcore/strategy"
)

// Timeframe constrains how user-supplied date bounds are snapped before
// becoming the ranges the driver walks.
type Timeframe int

const (
	Daily Timeframe = iota
	Weekly
	Monthly
	Intraday
)

func (tf Timeframe) String() string {
	switch tf {
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Intraday:
		return "Intraday"
	default:
		return "Unknown"
	}
}

// BackTester walks Ranges in order, driving every registered strategy
// over the unified timestamp sequence of each. It is not safe for
// concurrent use; run independent backtests in parallel via RunMany.
type BackTester struct {
	Timeframe Timeframe
	Ranges    []bar.DateRange

	// Calendar filters the unified timestamp sequence down to instants the
	// market was actually open, consulted only for the Intraday timeframe:
	// Daily/Weekly/Monthly bars are already session-aggregated and carry no
	// intrabar session boundary to filter against.
	Calendar markethours.Calendar

	strategies []*strategy.Strategy
}

// New returns a backtester over one or more already-scoped ranges, each
// snapped to tf's boundary convention. ErrUnsupportedTimeframe is
// returned for an empty range list or an unrecognized timeframe value.
func New(tf Timeframe, ranges ...bar.DateRange) (*BackTester, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("backtester: no ranges supplied: %w", errs.ErrUnsupportedTimeframe)
	}
	snapped := make([]bar.DateRange, len(ranges))
	for i, r := range ranges {
		s, err := snapRange(tf, r)
		if err != nil {
			return nil, err
		}
		snapped[i] = s
	}
	return &BackTester{Timeframe: tf, Ranges: snapped, Calendar: markethours.USEquities{}}, nil
}

// NewFromDates is the single-range convenience form of New: it builds the
// range from [start,end] and New then snaps it to tf's boundary convention.
func NewFromDates(tf Timeframe, start, end time.Time) (*BackTester, error) {
	r, err := bar.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}
	return New(tf, r)
}

func snapRange(tf Timeframe, r bar.DateRange) (bar.DateRange, error) {
	switch tf {
	case Daily:
		return bar.DateRange{Start: snapToWeekday(r.Start, false), End: snapToWeekday(r.End, true)}, nil
	case Weekly:
		return bar.DateRange{Start: snapToWeekStart(r.Start), End: snapToWeekStart(r.End)}, nil
	case Monthly:
		return bar.DateRange{Start: snapToMonthStart(r.Start), End: snapToMonthStart(r.End)}, nil
	case Intraday:
		return r, nil
	default:
		return bar.DateRange{}, fmt.Errorf("backtester: timeframe %d: %w", tf, errs.ErrUnsupportedTimeframe)
	}
}

// snapToWeekday moves a weekend timestamp to the nearest weekday: forward
// (for a range's End) or backward (for a range's Start), per the design's
// "Daily snaps weekend endpoints to the nearest prior/next weekday".
func snapToWeekday(t time.Time, forward bool) time.Time {
	step := -1
	if forward {
		step = 1
	}
	for {
		switch t.Weekday() {
		case time.Saturday, time.Sunday:
			t = t.AddDate(0, 0, step)
		default:
			return t
		}
	}
}

func snapToWeekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func snapToMonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// AddStrategy registers a strategy to be driven by Run. Order of
// registration is the order strategies are walked within each bar.
func (bt *BackTester) AddStrategy(s *strategy.Strategy) {
	bt.strategies = append(bt.strategies, s)
}

// Strategies returns every registered strategy in registration order.
func (bt *BackTester) Strategies() []*strategy.Strategy {
	return bt.strategies
}

// StrategyByName returns the first registered strategy with the given
// name, or nil if none matches.
func (bt *BackTester) StrategyByName(name string) *strategy.Strategy {
	for _, s := range bt.strategies {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Run walks every range in order, driving all registered strategies over
// each range's unified timestamp sequence. A failure at any bar aborts
// the whole run immediately: a failed backtest yields no partial results,
// matching the design's error-propagation policy.
func (bt *BackTester) Run() error {
	if len(bt.strategies) == 0 {
		return errs.ErrNoStrategies
	}

	securities := bt.allSecurities()

	for ri, r := range bt.Ranges {
		isLastRange := ri == len(bt.Ranges)-1

		timestamps := bar.UnifiedTimestamps(securities, r)
		if bt.Timeframe == Intraday && bt.Calendar != nil {
			timestamps = filterOpenMarket(timestamps, bt.Calendar)
		}
		if len(timestamps) == 0 {
			continue
		}
		rangeEnd := timestamps[len(timestamps)-1]

		for i := 1; i < len(timestamps); i++ {
			tOrder := timestamps[i-1]
			tFill := timestamps[i]

			for _, s := range bt.strategies {
				s.UpdateBarNumber(tOrder)

				flatOut := !isLastRange && !tFill.Before(rangeEnd)
				if flatOut {
					if err := s.FlattenAllOnOpen(tOrder); err != nil {
						return err
					}
				} else {
					if err := s.ExitOrders(tOrder); err != nil {
						return err
					}
					if err := s.EntryOrders(tOrder); err != nil {
						return err
					}
				}
				s.ProcessPendingOrders(tFill)
			}
		}
	}
	return nil
}

func filterOpenMarket(timestamps []time.Time, cal markethours.Calendar) []time.Time {
	out := timestamps[:0]
	for _, ts := range timestamps {
		if cal.IsOpen(ts) {
			out = append(out, ts)
		}
	}
	return out
}

func (bt *BackTester) allSecurities() []*bar.Security {
	seen := make(map[*bar.Security]struct{})
	var out []*bar.Security
	for _, s := range bt.strategies {
		for _, sec := range s.Portfolio.Securities() {
			if _, ok := seen[sec]; ok {
				continue
			}
			seen[sec] = struct{}{}
			out = append(out, sec)
		}
	}
	return out
}

// RunMany runs every backtester in bts concurrently across at most
// workers goroutines (all of them at once if workers <= 0), returning one
// error per input in the same order. Each BackTester must own its own
// strategies, broker, and portfolio references end-to-end — the only
// state shared across goroutines is the package-level atomic order-id
// counter in the order package.
func RunMany(bts []*BackTester, workers int) []error {
	if workers <= 0 || workers > len(bts) {
		workers = len(bts)
	}
	results := make([]error, len(bts))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, bt := range bts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, bt *BackTester) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = bt.Run()
		}(i, bt)
	}
	wg.Wait()
	return results
}
