package markethours

import (
	"testing"
	"time"
)

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestIsOpenDuringSession(t *testing.T) {
	cal := USEquities{}
	if !cal.IsOpen(at(2023, 1, 2, 9, 30)) {
		t.Fatal("want open at the 09:30 session open on a Monday")
	}
}

func TestIsOpenAtClose(t *testing.T) {
	cal := USEquities{}
	if cal.IsOpen(at(2023, 1, 2, 16, 0)) {
		t.Fatal("want closed at 16:00, the session close boundary is exclusive")
	}
}

func TestIsOpenOnWeekend(t *testing.T) {
	cal := USEquities{}
	if cal.IsOpen(at(2023, 1, 7, 10, 0)) {
		t.Fatal("want closed on a Saturday regardless of time of day")
	}
}

func TestNextTradingTimeSkipsWeekend(t *testing.T) {
	cal := USEquities{}
	from := at(2023, 1, 6, 15, 45) // Friday afternoon
	got := cal.NextTradingTime(from, 30*time.Minute)
	want := at(2023, 1, 9, 9, 30) // Monday open
	if !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextTradingTimeWithinSessionIsUnchanged(t *testing.T) {
	cal := USEquities{}
	from := at(2023, 1, 3, 10, 0) // Tuesday mid-session
	got := cal.NextTradingTime(from, 15*time.Minute)
	want := at(2023, 1, 3, 10, 15)
	if !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextTradingTimeAfterCloseJumpsToNextOpen(t *testing.T) {
	cal := USEquities{}
	from := at(2023, 1, 3, 15, 55) // Tuesday, 5 min before close
	got := cal.NextTradingTime(from, 30*time.Minute)
	want := at(2023, 1, 4, 9, 30) // Wednesday open
	if !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}
