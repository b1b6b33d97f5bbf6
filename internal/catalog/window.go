package catalog

import (
	"time"

	"eventboard/internal/model"
)

// ApplyWindow narrows an already time-filtered, sorted timed sequence
// according to the declarative window value:
//
//	"N"         keep the first N elements
//	"today"     keep starts on now's local calendar day
//	"tomorrow"  keep starts on today or tomorrow
//	"this_week" keep starts at or before the end of the current week
//	"all"       no additional filtering (also any unrecognized value)
//
// Pure given (events, now, value); the input slice is never mutated.
func ApplyWindow(value string, events []model.Record, now time.Time) []model.Record {
	if n, ok := parseCount(value); ok {
		if n > len(events) {
			n = len(events)
		}
		out := make([]model.Record, n)
		copy(out, events[:n])
		return out
	}

	switch value {
	case "today":
		return filterRecords(events, func(rec model.Record) bool {
			return sameDay(rec.Start, now)
		})
	case "tomorrow":
		tomorrow := now.AddDate(0, 0, 1)
		return filterRecords(events, func(rec model.Record) bool {
			return sameDay(rec.Start, now) || sameDay(rec.Start, tomorrow)
		})
	case "this_week":
		endOfWeek := weekEnd(now)
		return filterRecords(events, func(rec model.Record) bool {
			return !rec.Start.After(endOfWeek)
		})
	default:
		// "all" and anything unrecognized pass through unchanged.
		out := make([]model.Record, len(events))
		copy(out, events)
		return out
	}
}

// weekEnd computes 23:59:59.999 local time on the upcoming Sunday.
func weekEnd(now time.Time) time.Time {
	days := 7 - int(now.Weekday())
	end := now.AddDate(0, 0, days)
	return time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59,
		int(999*time.Millisecond), end.Location())
}

// maxWindowCount caps parsed count values far above any realistic event
// total so oversized digit strings cannot overflow the accumulator.
const maxWindowCount = 1 << 20

// parseCount accepts only unsigned integer strings.
func parseCount(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
		if n > maxWindowCount {
			n = maxWindowCount
		}
	}
	return n, true
}

func filterRecords(events []model.Record, keep func(model.Record) bool) []model.Record {
	out := make([]model.Record, 0, len(events))
	for _, rec := range events {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
