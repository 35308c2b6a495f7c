// Package strategy is the façade a backtest drives one bar at a time: it
// owns a broker, consults a pattern evaluator once per bar per security to
// decide whether to enter, and manages each open unit's profit-target,
// stop-loss, and maximum-holding-period exits independently, enabling
// pyramiding when configured. It also exposes the result query surface
// (closed/open trade counts, profit factor, return series) the backtester
// reports once a run finishes.
package strategy

import (
	"fmt"
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/evdnx/backtestcore/broker"
	"github.com/evdnx/backtestcore/config"
	"github.com/evdnx/backtestcore/errs"
	"github.com/evdnx/backtestcore/position"
	"github.com/evdnx/backtestcore/returns"
	"github.com/evdnx/backtestcore/signal"
	"github.com/evdnx/backtestcore/stats"
	"github.com/shopspring/decimal"
)

// Strategy is one trading pattern evaluated against every security in a
// portfolio, long-only or short-only per instance (run two Strategy
// instances over the same portfolio for a strategy that trades both
// sides). It is not safe for concurrent use; parallel backtests each get
// their own Strategy/Broker pair.
type Strategy struct {
	Name      string
	Direction position.Direction
	Broker    *broker.Broker
	Portfolio *bar.Portfolio
	Evaluator signal.Evaluator
	Options   config.StrategyOptions

	barCount map[string]int
}

// New returns a strategy trading dir over every security in portfolio via
// broker, firing entries when evaluator signals and respecting opts'
// pyramiding/exit configuration.
func New(name string, dir position.Direction, b *broker.Broker, portfolio *bar.Portfolio, evaluator signal.Evaluator, opts config.StrategyOptions) (*Strategy, error) {
	if b == nil || portfolio == nil {
		return nil, fmt.Errorf("strategy %s: %w", name, errs.ErrBrokerConfig)
	}
	if evaluator == nil {
		evaluator = signal.None
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return &Strategy{
		Name:      name,
		Direction: dir,
		Broker:    b,
		Portfolio: portfolio,
		Evaluator: evaluator,
		Options:   opts,
		barCount:  make(map[string]int),
	}, nil
}

// UpdateBarNumber advances every security's bar counter and appends the
// bar at t to every currently open unit's history. Called unconditionally
// once per unified timestamp, regardless of which branch the driver takes
// for that bar, so a security with no bar at t is simply a no-op.
func (s *Strategy) UpdateBarNumber(t time.Time) {
	for _, sec := range s.Portfolio.Securities() {
		b, ok := sec.Series.BarAt(t)
		if !ok {
			continue
		}
		s.barCount[sec.Symbol]++
		s.Broker.AppendBarToOpenUnits(sec.Symbol, b)
	}
}

// EntryOrders evaluates the pattern against every security's bar at t and
// submits a market entry when it fires and pyramiding rules allow another
// unit. A security with no bar at t, or whose pattern needs more warm-up
// than has elapsed, issues nothing.
func (s *Strategy) EntryOrders(t time.Time) error {
	for _, sec := range s.Portfolio.Securities() {
		if _, ok := sec.Series.BarAt(t); !ok {
			continue
		}
		open := s.openUnits(sec.Symbol)
		if !s.Options.CanPyramid(len(open)) {
			continue
		}
		if !s.Evaluator.Signal(sec, t) {
			continue
		}
		slPct := decimal.NewFromFloat(s.Options.StopLossPct)
		tpPct := decimal.NewFromFloat(s.Options.ProfitTargetPct)
		var err error
		if s.Direction == position.Long {
			_, err = s.Broker.EnterLongOnOpen(sec.Symbol, 1, t, slPct, tpPct)
		} else {
			_, err = s.Broker.EnterShortOnOpen(sec.Symbol, 1, t, slPct, tpPct)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ExitOrders submits, for every open unit on every security, its
// profit-target limit and stop-loss stop orders priced off that unit's
// own entry price. A unit held MaxHoldingBars or more instead gets only a
// market exit; no limit/stop order is submitted for it on that bar. Each
// unit's targets are independent, which is what makes pyramided units
// exit on their own schedule rather than all together.
func (s *Strategy) ExitOrders(t time.Time) error {
	for _, sec := range s.Portfolio.Securities() {
		for _, u := range s.openUnits(sec.Symbol) {
			if err := s.submitUnitExits(sec.Symbol, u, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Strategy) submitUnitExits(symbol string, u *position.PositionUnit, t time.Time) error {
	if s.Options.MaxHoldingBars > 0 && u.NumBarsHeld() >= s.Options.MaxHoldingBars {
		return s.exitUnitOnOpen(symbol, u, t)
	}
	// A limit/stop pair already pending from an earlier bar is left alone:
	// resubmitting every bar would stack duplicate orders on top of it.
	if s.Broker.HasPendingExit(symbol, u.ID) {
		return nil
	}
	if u.HasProfitTarget {
		if err := s.exitUnitAtLimit(symbol, u, t); err != nil {
			return err
		}
	}
	if u.HasStop {
		if err := s.exitUnitAtStop(symbol, u, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Strategy) exitUnitAtLimit(symbol string, u *position.PositionUnit, t time.Time) error {
	var err error
	if s.Direction == position.Long {
		_, err = s.Broker.ExitLongUnitAtLimit(symbol, u.UnitNumber, t, u.ProfitTargetPrice)
	} else {
		_, err = s.Broker.ExitShortUnitAtLimit(symbol, u.UnitNumber, t, u.ProfitTargetPrice)
	}
	return err
}

func (s *Strategy) exitUnitAtStop(symbol string, u *position.PositionUnit, t time.Time) error {
	var err error
	if s.Direction == position.Long {
		_, err = s.Broker.ExitLongUnitAtStop(symbol, u.UnitNumber, t, u.StopPrice)
	} else {
		_, err = s.Broker.ExitShortUnitAtStop(symbol, u.UnitNumber, t, u.StopPrice)
	}
	return err
}

func (s *Strategy) exitUnitOnOpen(symbol string, u *position.PositionUnit, t time.Time) error {
	var err error
	if s.Direction == position.Long {
		_, err = s.Broker.ExitLongUnitOnOpen(symbol, u.UnitNumber, t)
	} else {
		_, err = s.Broker.ExitShortUnitOnOpen(symbol, u.UnitNumber, t)
	}
	return err
}

// FlattenAllOnOpen submits a market exit for every open unit across every
// security, used by the driver's end-of-range flat-out.
func (s *Strategy) FlattenAllOnOpen(t time.Time) error {
	for _, sec := range s.Portfolio.Securities() {
		for _, u := range s.openUnits(sec.Symbol) {
			if err := s.exitUnitOnOpen(sec.Symbol, u, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessPendingOrders resolves every pending order against the bar at t,
// per security, skipping securities with no bar at t.
func (s *Strategy) ProcessPendingOrders(t time.Time) {
	for _, sec := range s.Portfolio.Securities() {
		b, ok := sec.Series.BarAt(t)
		if !ok {
			continue
		}
		s.Broker.ProcessPendingOrders(sec.Symbol, b)
	}
}

func (s *Strategy) openUnits(symbol string) []*position.PositionUnit {
	p := s.Broker.PositionFor(symbol, s.Direction)
	if p.Direction != s.Direction {
		return nil
	}
	return p.OpenUnits()
}

// --- Result query surface ------------------------------------------------

// ClosedTrades returns the number of completed transactions.
func (s *Strategy) ClosedTrades() int { return len(s.Broker.Transactions().Complete()) }

// OpenTrades returns the number of still-open transactions.
func (s *Strategy) OpenTrades() int { return len(s.Broker.Transactions().Open()) }

// TotalBarsHeld sums NumBarsHeld across every transaction's unit.
func (s *Strategy) TotalBarsHeld() int {
	return returns.TotalBarsHeld(s.Broker.Transactions().All())
}

// EstimatedAnnualizedTrades extrapolates ClosedTrades over [start,end] to
// a full year.
func (s *Strategy) EstimatedAnnualizedTrades(start, end time.Time) (decimal.Decimal, error) {
	return stats.EstimatedAnnualizedTrades(s.ClosedTrades(), start, end)
}

// ProfitFactor is gross profit over gross loss across completed trades.
func (s *Strategy) ProfitFactor() decimal.Decimal {
	return stats.ProfitFactor(s.Broker.Transactions().All())
}

// RequiredWinRate is the breakeven win rate implied by ProfitFactor.
func (s *Strategy) RequiredWinRate() decimal.Decimal {
	return stats.RequiredWinRate(s.ProfitFactor())
}

// ConsecutiveLosses is the longest run of back-to-back losing trades.
func (s *Strategy) ConsecutiveLosses() int {
	return stats.ConsecutiveLosses(s.Broker.Transactions().All())
}

// FlatReturns is the concatenated per-bar return series across every
// trade, closed and open.
func (s *Strategy) FlatReturns() []decimal.Decimal {
	return returns.Flat(s.Broker.Transactions().All())
}

// TimestampedReturns is FlatReturns with each bar's timestamp attached.
func (s *Strategy) TimestampedReturns() []returns.TimestampedBar {
	return returns.Timestamped(s.Broker.Transactions().All())
}

// ExpandedReturns reports close-to-close, open-to-close, high-to-open, and
// low-to-open returns per bar.
func (s *Strategy) ExpandedReturns() []returns.ExpandedBar {
	return returns.Expanded(s.Broker.Transactions().All())
}
