// Package tick implements the pluggable tick-size policies used to round
// computed limit/stop prices to a security's minimum price increment.
// Policies are pure functions of (date, security attributes, native tick).
package tick

import (
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/shopspring/decimal"
)

// Policy resolves the effective tick size for a security on a given date.
type Policy interface {
	EffectiveTick(date time.Time, sec *bar.Security) decimal.Decimal
}

// NoFractions uses the security's native tick unchanged.
type NoFractions struct{}

func (NoFractions) EffectiveTick(_ time.Time, sec *bar.Security) decimal.Decimal {
	return sec.NativeTick
}

// LegacyFractions reproduces the historical US-equity tick regime:
// eighths before 1997-06-01, sixteenths through 2001-04-08, pennies
// thereafter. Non-equities are unaffected and keep their native tick.
type LegacyFractions struct{}

var (
	eighth       = decimal.NewFromInt(1).Div(decimal.NewFromInt(8))
	sixteenth    = decimal.NewFromInt(1).Div(decimal.NewFromInt(16))
	penny        = decimal.NewFromFloat(0.01)
	decimalEraCutover1 = time.Date(1997, time.June, 1, 0, 0, 0, 0, time.UTC)
	decimalEraCutover2 = time.Date(2001, time.April, 9, 0, 0, 0, 0, time.UTC)
)

func (LegacyFractions) EffectiveTick(date time.Time, sec *bar.Security) decimal.Decimal {
	if !sec.IsEquity {
		return sec.NativeTick
	}
	switch {
	case date.Before(decimalEraCutover1):
		return eighth
	case date.Before(decimalEraCutover2):
		return sixteenth
	default:
		return penny
	}
}

// SubPennyRule models the sub-dollar tick-size rule: equities priced below
// $1 keep a penny if split-adjusted, or shrink to a ten-thousandth if not;
// equities at or above $1 always use a penny. Non-equities are unaffected.
type SubPennyRule struct {
	// LastPrice is the reference price used to decide the sub-dollar branch.
	LastPrice decimal.Decimal
}

var tenThousandth = decimal.NewFromFloat(0.0001)
var oneDollar = decimal.NewFromInt(1)

func (r SubPennyRule) EffectiveTick(_ time.Time, sec *bar.Security) decimal.Decimal {
	if !sec.IsEquity {
		return sec.NativeTick
	}
	if r.LastPrice.LessThan(oneDollar) {
		if sec.IsSplitAdjusted {
			return penny
		}
		return tenThousandth
	}
	return penny
}

// RoundHalfUp rounds price to the nearest multiple of tickSize, rounding a
// value exactly halfway between two ticks away from zero, matching the
// original's num::Round2Tick. A computed profit target of 101.50*1.03 =
// 104.545 against a penny tick rounds to 104.55, not 104.54: the spec's own
// worked example (and the original source) round half-up, not half-to-even,
// despite the design prose's contradictory "round-half-to-even" phrasing.
func RoundHalfUp(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	units := price.Div(tickSize)
	rounded := units.Round(0)
	return rounded.Mul(tickSize)
}
