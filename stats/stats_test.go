package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/evdnx/backtestcore/errs"
	"github.com/evdnx/backtestcore/order"
	"github.com/evdnx/backtestcore/position"
	"github.com/evdnx/backtestcore/transaction"
	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func closedTx(t *testing.T, symbol string, dir position.Direction, entry, exit float64, units int, at time.Time) *transaction.Transaction {
	t.Helper()
	entryKind := order.MarketEntryLong
	if dir == position.Short {
		entryKind = order.MarketEntryShort
	}
	entryOrder, err := order.New(symbol, entryKind, units, at)
	if err != nil {
		t.Fatal(err)
	}
	if err := entryOrder.MarkExecuted(at.Add(time.Hour), d(entry)); err != nil {
		t.Fatal(err)
	}
	unit := position.NewPositionUnit(1, d(entry), at.Add(time.Hour), units)

	tx, err := transaction.NewTransaction(entryOrder, unit, symbol, dir)
	if err != nil {
		t.Fatal(err)
	}
	exitOrder, err := order.New(symbol, order.MarketExitSell, units, at.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if err := exitOrder.MarkExecuted(at.Add(25*time.Hour), d(exit)); err != nil {
		t.Fatal(err)
	}
	unit.Close(d(exit), at.Add(25*time.Hour))
	if err := tx.Complete(exitOrder); err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestTradePnLLongAndShort(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	winLong := closedTx(t, "AAPL", position.Long, 100, 110, 10, at)
	if got := TradePnL(winLong); !got.Equal(d(100)) {
		t.Fatalf("want 100 pnl on a long winner, got %s", got)
	}
	winShort := closedTx(t, "AAPL", position.Short, 100, 90, 10, at)
	if got := TradePnL(winShort); !got.Equal(d(100)) {
		t.Fatalf("want 100 pnl on a short winner, got %s", got)
	}
}

func TestProfitFactorAndRequiredWinRate(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	win := closedTx(t, "AAPL", position.Long, 100, 120, 10, at)
	loss := closedTx(t, "AAPL", position.Long, 100, 90, 10, at.Add(48*time.Hour))

	pf := ProfitFactor([]*transaction.Transaction{win, loss})
	want := d(200).Div(d(100)) // gross profit 200, gross loss 100
	if !pf.Equal(want) {
		t.Fatalf("want profit factor %s, got %s", want, pf)
	}

	wr := RequiredWinRate(pf)
	wantWR := decimal.NewFromInt(1).Div(decimal.NewFromInt(1).Add(pf))
	if !wr.Equal(wantWR) {
		t.Fatalf("want required win rate %s, got %s", wantWR, wr)
	}
}

func TestProfitFactorZeroWithNoLosses(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	win := closedTx(t, "AAPL", position.Long, 100, 120, 10, at)
	pf := ProfitFactor([]*transaction.Transaction{win})
	if !pf.IsZero() {
		t.Fatalf("want zero profit factor with no losses, got %s", pf)
	}
	if !RequiredWinRate(pf).IsZero() {
		t.Fatal("want zero required win rate when profit factor is zero")
	}
}

func TestConsecutiveLosses(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	txs := []*transaction.Transaction{
		closedTx(t, "AAPL", position.Long, 100, 90, 10, at),
		closedTx(t, "AAPL", position.Long, 100, 95, 10, at.Add(24*time.Hour)),
		closedTx(t, "AAPL", position.Long, 100, 110, 10, at.Add(48*time.Hour)),
		closedTx(t, "AAPL", position.Long, 100, 80, 10, at.Add(72*time.Hour)),
	}
	if got := ConsecutiveLosses(txs); got != 2 {
		t.Fatalf("want longest losing streak of 2, got %d", got)
	}
}

func TestEstimatedAnnualizedTradesZeroDuration(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	if _, err := EstimatedAnnualizedTrades(10, now, now); !errors.Is(err, errs.ErrZeroDuration) {
		t.Fatalf("want ErrZeroDuration, got %v", err)
	}
}

func TestEstimatedAnnualizedTradesExtrapolatesToAYear(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	got, err := EstimatedAnnualizedTrades(30, start, end)
	if err != nil {
		t.Fatal(err)
	}
	// 30 trades in 30 days extrapolates to ~365.25 trades a year.
	want := d(365.25)
	diff := got.Sub(want).Abs()
	if diff.GreaterThan(d(0.01)) {
		t.Fatalf("want ~%s annualized trades, got %s", want, got)
	}
}
