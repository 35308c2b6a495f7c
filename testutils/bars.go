package testutils

import (
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/shopspring/decimal"
)

// OHLC is a compact literal for building test bars: date, the four price
// fields, and an optional Volume (defaults to zero, which suits every
// fixture that does not exercise a volume-weighted indicator).
type OHLC struct {
	Date                   string // "2023-11-18"
	Open, High, Low, Close float64
	Volume                 float64
}

// MustBars parses a slice of OHLC literals into ascending PriceBars at the
// default bar time, panicking on a malformed date or OHLC invariant
// violation — tests are expected to supply well-formed fixtures.
func MustBars(rows []OHLC) []bar.PriceBar {
	out := make([]bar.PriceBar, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			panic(err)
		}
		ts := bar.AtDefaultBarTime(d)
		b, err := bar.NewPriceBar(ts,
			decimal.NewFromFloat(r.Open),
			decimal.NewFromFloat(r.High),
			decimal.NewFromFloat(r.Low),
			decimal.NewFromFloat(r.Close),
			decimal.NewFromFloat(r.Volume),
		)
		if err != nil {
			panic(err)
		}
		out = append(out, b)
	}
	return out
}

// NewSecurity builds a Security with a one-cent native tick and the given
// bars, a convenient default for tests that do not exercise tick policy.
func NewSecurity(symbol string, rows []OHLC) *bar.Security {
	return &bar.Security{
		Symbol:        symbol,
		Series:        bar.NewTimeSeries(MustBars(rows)),
		NativeTick:    decimal.NewFromFloat(0.01),
		HalfTick:      decimal.NewFromFloat(0.005),
		BigPointValue: decimal.NewFromInt(1),
		IsEquity:      true,
	}
}
