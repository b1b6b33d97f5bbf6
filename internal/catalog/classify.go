package catalog

import (
	"time"

	"eventboard/internal/model"
)

// State is a record's position relative to a reference instant. The
// buckets are mutually exclusive and exhaustive, evaluated in priority
// order: ended, happening now, final countdown, starting soon, normal.
type State string

const (
	StateEnded          State = "ended"
	StateHappeningNow   State = "happening-now"
	StateFinalCountdown State = "final-countdown"
	StateStartingSoon   State = "starting-soon"
	StateNormal         State = "normal"
)

const (
	finalCountdownWindow = 2 * time.Minute
	startingSoonWindow   = 10 * time.Minute
)

// Classify buckets rec against now. A record without a valid end is
// treated as already ended; it can never be visible anyway.
func Classify(rec model.Record, now time.Time) State {
	if !rec.EndValid {
		return StateEnded
	}
	if !rec.End.After(now) {
		return StateEnded
	}
	if !rec.Start.After(now) {
		return StateHappeningNow
	}
	until := rec.Start.Sub(now)
	if until <= finalCountdownWindow {
		return StateFinalCountdown
	}
	if until < startingSoonWindow {
		return StateStartingSoon
	}
	return StateNormal
}

// allDayMinDuration is deliberately 23 hours rather than 24: a
// daylight-saving transition can shrink a calendar day to 23 wall-clock
// hours and the day should still count as all-day.
const allDayMinDuration = 23 * time.Hour

// IsAllDay reports whether rec spans at least a full calendar day
// starting exactly at local midnight.
func IsAllDay(rec model.Record) bool {
	if !rec.EndValid {
		return false
	}
	if rec.End.Sub(rec.Start) < allDayMinDuration {
		return false
	}
	h, m, s := rec.Start.Clock()
	return h == 0 && m == 0 && s == 0
}

// occursOnDay reports whether the local calendar day of ref falls within
// [start, end), so multi-day all-day records count on each covered day.
func occursOnDay(rec model.Record, ref time.Time) bool {
	if !rec.EndValid {
		return false
	}
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return !day.Before(rec.Start) && day.Before(rec.End)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
