package signal

import (
	"time"

	"github.com/evdnx/backtestcore/bar"
	"github.com/evdnx/goti"
	"github.com/shopspring/decimal"
)

// warmupBars is the minimum number of closes the RSI window needs before
// its crossover reads are trusted, matching the teacher's 14-bar guard.
const warmupBars = 14

// OscillatorCrossover fires when RSI, MFI, and VWAO simultaneously agree
// on a bullish (or bearish) crossover, adapted from the teacher's
// MeanReversion strategy into a pure per-security evaluator: each
// security gets its own indicator suite, fed incrementally as bars are
// asked about in increasing timestamp order.
type OscillatorCrossover struct {
	Config goti.Config

	// Long selects the bullish (true) or bearish (false) side of the
	// crossover triple.
	Long bool

	suites map[*bar.Security]*trackedSuite
}

type trackedSuite struct {
	suite  *goti.IndicatorSuite
	lastIx int // index into sec.Series.Bars() already fed to suite
}

// NewOscillatorCrossover builds an evaluator with the given goti
// configuration and crossover direction.
func NewOscillatorCrossover(cfg goti.Config, long bool) *OscillatorCrossover {
	return &OscillatorCrossover{Config: cfg, Long: long, suites: make(map[*bar.Security]*trackedSuite)}
}

func (o *OscillatorCrossover) trackedFor(sec *bar.Security) (*trackedSuite, error) {
	ts, ok := o.suites[sec]
	if ok {
		return ts, nil
	}
	suite, err := goti.NewIndicatorSuiteWithConfig(o.Config)
	if err != nil {
		return nil, err
	}
	ts = &trackedSuite{suite: suite}
	o.suites[sec] = ts
	return ts, nil
}

// Signal implements Evaluator. Bars up to and including t are fed into the
// security's suite in timestamp order, then the three crossover reads are
// combined. A feed error or insufficient warm-up both resolve to "no
// signal" rather than propagating an error, matching the teacher's
// warn-and-skip style.
func (o *OscillatorCrossover) Signal(sec *bar.Security, t time.Time) bool {
	ts, err := o.trackedFor(sec)
	if err != nil {
		return false
	}

	bars := sec.Series.Bars()
	for ts.lastIx < len(bars) && !bars[ts.lastIx].Timestamp.After(t) {
		b := bars[ts.lastIx]
		if err := ts.suite.Add(toFloat(b.High), toFloat(b.Low), toFloat(b.Close), toFloat(b.Volume)); err != nil {
			return false
		}
		ts.lastIx++
	}

	if len(ts.suite.GetRSI().GetCloses()) < warmupBars {
		return false
	}

	var rsiOK, mfiOK, vwaoOK bool
	if o.Long {
		rsiOK, _ = ts.suite.GetRSI().IsBullishCrossover()
		mfiOK, _ = ts.suite.GetMFI().IsBullishCrossover()
		vwaoOK, _ = ts.suite.GetVWAO().IsBullishCrossover()
	} else {
		rsiOK, _ = ts.suite.GetRSI().IsBearishCrossover()
		mfiOK, _ = ts.suite.GetMFI().IsBearishCrossover()
		vwaoOK, _ = ts.suite.GetVWAO().IsBearishCrossover()
	}
	return rsiOK && mfiOK && vwaoOK
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
