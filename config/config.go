// Package config holds the tunable parameters that control a strategy's
// pyramiding and exit behavior, validated the same way the teacher
// validates its indicator/risk thresholds: a single Validate method that
// returns the first problem found with a concrete message.
package config

import "fmt"

// StrategyOptions controls whether and how a strategy pyramids into a
// symbol, and the optional bar-count based maximum holding period. See
// the design's "Strategy options" data model entry.
type StrategyOptions struct {
	// PyramidingEnabled allows a strategy to open more than one unit per
	// symbol while already in a position.
	PyramidingEnabled bool

	// MaxAdditionalUnits caps the number of units beyond the first one;
	// the simultaneous cap is 1+MaxAdditionalUnits. Must be 0 when
	// PyramidingEnabled is false; Validate rejects any other value.
	MaxAdditionalUnits int

	// StopLossPct and ProfitTargetPct are the default percentages applied
	// to each unit's entry price when a strategy does not compute its own
	// per-unit risk levels. Zero disables that leg.
	StopLossPct     float64
	ProfitTargetPct float64

	// MaxHoldingBars forces a market exit once a unit has been held this
	// many bars or more. Zero disables the time-based exit.
	MaxHoldingBars int
}

// DefaultStrategyOptions returns pyramiding disabled, no time-based exit,
// and a 2%/4% stop/target pair — a reasonable starting point for a
// strategy that does not override the defaults.
func DefaultStrategyOptions() StrategyOptions {
	return StrategyOptions{
		PyramidingEnabled:  false,
		MaxAdditionalUnits: 0,
		StopLossPct:        0.02,
		ProfitTargetPct:    0.04,
		MaxHoldingBars:     0,
	}
}

// Validate checks that the options are internally consistent, returning
// the first problem encountered.
func (o StrategyOptions) Validate() error {
	if o.MaxAdditionalUnits < 0 {
		return fmt.Errorf("MaxAdditionalUnits (%d) cannot be negative", o.MaxAdditionalUnits)
	}
	if !o.PyramidingEnabled && o.MaxAdditionalUnits != 0 {
		return fmt.Errorf("MaxAdditionalUnits (%d) must be 0 when PyramidingEnabled is false", o.MaxAdditionalUnits)
	}
	if o.StopLossPct < 0 || o.StopLossPct > 1 {
		return fmt.Errorf("StopLossPct (%f) must be between 0 and 1", o.StopLossPct)
	}
	if o.ProfitTargetPct < 0 || o.ProfitTargetPct > 10 {
		return fmt.Errorf("ProfitTargetPct (%f) out of realistic range", o.ProfitTargetPct)
	}
	if o.MaxHoldingBars < 0 {
		return fmt.Errorf("MaxHoldingBars (%d) cannot be negative", o.MaxHoldingBars)
	}
	return nil
}

// MaxSimultaneousUnits returns the cap on concurrently open units per
// symbol implied by these options: 1 when pyramiding is disabled,
// otherwise 1+MaxAdditionalUnits.
func (o StrategyOptions) MaxSimultaneousUnits() int {
	if !o.PyramidingEnabled {
		return 1
	}
	return 1 + o.MaxAdditionalUnits
}

// CanPyramid reports whether another unit may be opened given the current
// number of open units for a symbol: always when the symbol is flat,
// otherwise only when pyramidingEnabled AND numOpenUnits < 1+maxAdditionalUnits.
func (o StrategyOptions) CanPyramid(numOpenUnits int) bool {
	if numOpenUnits == 0 {
		return true
	}
	if !o.PyramidingEnabled {
		return false
	}
	return numOpenUnits < o.MaxSimultaneousUnits()
}
