package signal

import (
	"testing"
	"time"

	"github.com/evdnx/backtestcore/bar"
)

func TestNoneNeverFires(t *testing.T) {
	sec := &bar.Security{Symbol: "AAPL"}
	if None.Signal(sec, time.Now()) {
		t.Fatal("None must never fire")
	}
}

func TestEvaluatorFuncAdapts(t *testing.T) {
	var called bool
	ev := EvaluatorFunc(func(sec *bar.Security, t time.Time) bool {
		called = true
		return sec.Symbol == "AAPL"
	})
	if !ev.Signal(&bar.Security{Symbol: "AAPL"}, time.Now()) {
		t.Fatal("want true for matching symbol")
	}
	if !called {
		t.Fatal("underlying function must have been invoked")
	}
}
