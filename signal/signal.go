// Package signal defines the narrow contract a strategy consults once per
// bar to decide whether its pattern fires, plus one concrete evaluator
// built on the goti indicator suite. The contract is deliberately thin:
// the core never inspects indicator internals, only the boolean result.
package signal

import (
	"time"

	"github.com/evdnx/backtestcore/bar"
)

// Evaluator answers whether a strategy's pattern fires for security at
// timestamp t. Implementations must be pure with respect to that
// security's bars at or before t — no lookahead, no hidden state keyed on
// anything but the security's own history.
type Evaluator interface {
	Signal(security *bar.Security, t time.Time) bool
}

// EvaluatorFunc adapts a plain function to the Evaluator interface, the
// way http.HandlerFunc adapts a function to http.Handler.
type EvaluatorFunc func(security *bar.Security, t time.Time) bool

func (f EvaluatorFunc) Signal(security *bar.Security, t time.Time) bool {
	return f(security, t)
}

// None never fires; useful as a default for exit-only strategies that
// only ever submit orders from ExitOrders.
var None Evaluator = EvaluatorFunc(func(*bar.Security, time.Time) bool { return false })
