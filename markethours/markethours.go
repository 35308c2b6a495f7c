// Package markethours answers whether a US-equity market is open at a given
// instant and, given a starting time and interval, the next valid trading
// time — used by intraday strategies that need to reason about session
// boundaries rather than raw calendar arithmetic.
package markethours

import "time"

// Calendar is the interface a security's trading-hours source implements.
// US-equity hours are provided out of the box; other markets (futures,
// forex) can supply their own implementation.
type Calendar interface {
	IsOpen(t time.Time) bool
	NextTradingTime(from time.Time, interval time.Duration) time.Time
}

const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

// USEquities implements Calendar for the standard 9:30-16:00 Mon-Fri
// session, with no holiday calendar (future extension point).
type USEquities struct{}

func sessionOpen(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, openHour, openMinute, 0, 0, t.Location())
}

func sessionClose(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, closeHour, closeMinute, 0, 0, t.Location())
}

// IsOpen reports whether t falls on a weekday within [09:30, 16:00).
func (USEquities) IsOpen(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	open, close := sessionOpen(t), sessionClose(t)
	return !t.Before(open) && t.Before(close)
}

// NextTradingTime returns the next instant at or after from+interval that
// falls within an open session, skipping weekends and jumping to the next
// (or same) day's open when the candidate lands outside trading hours.
func (e USEquities) NextTradingTime(from time.Time, interval time.Duration) time.Time {
	next := from.Add(interval)

	for !e.IsOpen(next) {
		close := sessionClose(next)
		if !next.Before(close) {
			// At or after close: jump to the following day's open.
			next = sessionOpen(next.AddDate(0, 0, 1))
		} else {
			// Before today's open: jump to today's open.
			next = sessionOpen(next)
		}

		switch next.Weekday() {
		case time.Saturday:
			next = sessionOpen(next.AddDate(0, 0, 2))
		case time.Sunday:
			next = sessionOpen(next.AddDate(0, 0, 1))
		}
	}

	return next
}
