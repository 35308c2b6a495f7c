package tick

import (
	"testing"
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/shopspring/decimal"
)

func equity(splitAdjusted bool) *bar.Security {
	return &bar.Security{
		Symbol:          "AAPL",
		NativeTick:      decimal.NewFromFloat(0.01),
		IsEquity:        true,
		IsSplitAdjusted: splitAdjusted,
	}
}

func nonEquity() *bar.Security {
	return &bar.Security{
		Symbol:     "ESZ4",
		NativeTick: decimal.NewFromFloat(0.25),
		IsEquity:   false,
	}
}

func TestNoFractionsUsesNativeTick(t *testing.T) {
	sec := nonEquity()
	got := NoFractions{}.EffectiveTick(time.Now(), sec)
	if !got.Equal(sec.NativeTick) {
		t.Fatalf("want native tick %s, got %s", sec.NativeTick, got)
	}
}

func TestLegacyFractionsCutovers(t *testing.T) {
	sec := equity(true)
	pol := LegacyFractions{}

	pre1997 := time.Date(1997, time.May, 1, 0, 0, 0, 0, time.UTC)
	if got := pol.EffectiveTick(pre1997, sec); !got.Equal(eighth) {
		t.Fatalf("want eighth before 1997-06-01, got %s", got)
	}

	between := time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)
	if got := pol.EffectiveTick(between, sec); !got.Equal(sixteenth) {
		t.Fatalf("want sixteenth between cutovers, got %s", got)
	}

	atCutover2 := time.Date(2001, time.April, 9, 0, 0, 0, 0, time.UTC)
	if got := pol.EffectiveTick(atCutover2, sec); !got.Equal(penny) {
		t.Fatalf("want penny at/after 2001-04-09, got %s", got)
	}
}

func TestLegacyFractionsIgnoresNonEquities(t *testing.T) {
	sec := nonEquity()
	pol := LegacyFractions{}
	pre1997 := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	got := pol.EffectiveTick(pre1997, sec)
	if !got.Equal(sec.NativeTick) {
		t.Fatalf("non-equities must keep their native tick, got %s", got)
	}
}

func TestSubPennyRuleBelowDollarSplitAdjusted(t *testing.T) {
	rule := SubPennyRule{LastPrice: decimal.NewFromFloat(0.50)}
	got := rule.EffectiveTick(time.Now(), equity(true))
	if !got.Equal(penny) {
		t.Fatalf("want penny for split-adjusted sub-dollar equity, got %s", got)
	}
}

func TestSubPennyRuleBelowDollarNotSplitAdjusted(t *testing.T) {
	rule := SubPennyRule{LastPrice: decimal.NewFromFloat(0.50)}
	got := rule.EffectiveTick(time.Now(), equity(false))
	if !got.Equal(tenThousandth) {
		t.Fatalf("want ten-thousandth for non-split-adjusted sub-dollar equity, got %s", got)
	}
}

func TestSubPennyRuleAtOrAboveDollar(t *testing.T) {
	rule := SubPennyRule{LastPrice: decimal.NewFromFloat(10)}
	got := rule.EffectiveTick(time.Now(), equity(false))
	if !got.Equal(penny) {
		t.Fatalf("want penny at/above a dollar regardless of split-adjustment, got %s", got)
	}
}

func TestRoundHalfUpRoundsAwayFromZeroAtHalfTick(t *testing.T) {
	tickSize := decimal.NewFromFloat(0.01)
	// 1.005 is exactly halfway between 1.00 and 1.01; round-half-up picks
	// the neighbor away from zero, 1.01.
	got := RoundHalfUp(decimal.NewFromFloat(1.005), tickSize)
	want := decimal.NewFromFloat(1.01)
	if !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestRoundHalfUpZeroTickIsNoop(t *testing.T) {
	price := decimal.NewFromFloat(12.3456)
	got := RoundHalfUp(price, decimal.Zero)
	if !got.Equal(price) {
		t.Fatalf("zero tick size should leave price unchanged, want %s got %s", price, got)
	}
}

func TestRoundHalfUpMatchesPyramidingTargetsFromScenario(t *testing.T) {
	tickSize := decimal.NewFromFloat(0.01)
	pct := decimal.NewFromFloat(0.03)

	entry1 := decimal.NewFromFloat(101.50)
	target1 := entry1.Add(entry1.Mul(pct)) // 104.545
	got1 := RoundHalfUp(target1, tickSize)
	if want := decimal.NewFromFloat(104.55); !got1.Equal(want) {
		t.Fatalf("want %s, got %s", want, got1)
	}

	entry2 := decimal.NewFromFloat(105.50)
	target2 := entry2.Add(entry2.Mul(pct)) // 108.665
	got2 := RoundHalfUp(target2, tickSize)
	if want := decimal.NewFromFloat(108.67); !got2.Equal(want) {
		t.Fatalf("want %s, got %s", want, got2)
	}
}
