// Package errs collects the sentinel error kinds shared by the backtesting
// core. Every package that can raise one of these wraps it with
// fmt.Errorf("...: %w", errs.X) so callers can still errors.Is against the
// kind while getting a message with concrete context.
package errs

import "errors"

var (
	// ErrBarInvariantViolation: OHLC constraints violated on construction.
	ErrBarInvariantViolation = errors.New("bar invariant violation")

	// ErrOrderConstructionInvalid: zero units or nil references passed to an order constructor.
	ErrOrderConstructionInvalid = errors.New("order construction invalid")

	// ErrOrderNotExecuted: fill price violates the order's side-specific predicate.
	ErrOrderNotExecuted = errors.New("order not executed")

	// ErrOrderAlreadyTerminal: attempt to transition an order out of Executed/Canceled.
	ErrOrderAlreadyTerminal = errors.New("order already in a terminal state")

	// ErrTransactionInvariantViolation: symbol or direction mismatch between order and position.
	ErrTransactionInvariantViolation = errors.New("transaction invariant violation")

	// ErrDuplicatePositionId: a transaction is already registered for a position id.
	ErrDuplicatePositionId = errors.New("duplicate position id")

	// ErrDirectionConflict: entry order opposite to an existing open position.
	ErrDirectionConflict = errors.New("direction conflict with open position")

	// ErrUnknownUnit: a unit index is out of range for an instrument position.
	ErrUnknownUnit = errors.New("unknown position unit")

	// ErrPositionFlat: a symbol has no open position when one was required.
	ErrPositionFlat = errors.New("position is flat")

	// ErrBrokerConfig: nil portfolio or unsupported broker configuration.
	ErrBrokerConfig = errors.New("invalid broker configuration")

	// ErrUnsupportedTimeframe: factory call inconsistent with the chosen timeframe.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe for this operation")

	// ErrNoStrategies: driver asked to run with an empty strategy list.
	ErrNoStrategies = errors.New("no strategies registered")

	// ErrZeroDuration: annualized-trade query attempted on a zero-length range.
	ErrZeroDuration = errors.New("zero duration date range")
)
