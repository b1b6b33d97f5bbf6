package feed

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

// maxOccurrencesPerEvent caps recurrence expansion per VEVENT.
const maxOccurrencesPerEvent = 5000

// icsEvent is the normalized form of one VEVENT before expansion.
type icsEvent struct {
	UID         string
	Summary     string
	Description string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time
}

// ExpandICS parses an ICS payload and expands it into feed rows within
// [rangeStart, rangeEnd]. Each occurrence row carries an explicit
// identity of the form "UID/occurrence-start" so that recurring
// instances deduplicate stably across refreshes. RRULE, EXDATE, and
// RECURRENCE-ID overrides are honored.
func ExpandICS(src Source, body []byte, rangeStart, rangeEnd time.Time) ([]map[string]string, error) {
	if len(body) == 0 {
		return nil, errors.New("feed: empty ics body")
	}
	if rangeEnd.Before(rangeStart) {
		return nil, errors.New("feed: ics range end before start")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var base []icsEvent
	overrides := make(map[string][]icsEvent)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Error("feed: skipping bad vevent", perr, "id", src.ID)
			continue
		}
		if ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		} else {
			base = append(base, ev)
		}
	}

	var rows []map[string]string
	for _, ev := range base {
		for _, occ := range expandEvent(ev, overrides[ev.UID], rangeStart, rangeEnd) {
			rows = append(rows, occ.row())
		}
	}
	appLog.Info("feed: ics expanded", "id", src.ID, "events", len(base), "rows", len(rows))
	return rows, nil
}

// occurrence is one concrete expanded instance.
type occurrence struct {
	ev         icsEvent
	start, end time.Time
}

// row renders an occurrence as a feed row. All-day instances use
// date-only timestamps so downstream all-day detection holds.
func (o occurrence) row() map[string]string {
	var start, end string
	if o.ev.AllDay {
		start = o.start.Format("2006-01-02")
		end = o.end.Format("2006-01-02")
	} else {
		start = o.start.Format(time.RFC3339)
		end = o.end.Format(time.RFC3339)
	}
	return map[string]string{
		model.ColID:          o.ev.UID + "/" + o.start.Format(time.RFC3339),
		model.ColSubject:     o.ev.Summary,
		model.ColStart:       start,
		model.ColEnd:         end,
		model.ColDescription: o.ev.Description,
	}
}

func parseVEvent(ve *ical.VEvent) (icsEvent, error) {
	var out icsEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	start, _ := ve.GetStartAt()
	end, _ := ve.GetEndAt()
	out.Start = start
	out.End = end

	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.AllDay = true
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			out.AllDay = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.Recurrence = &t
		}
	}

	return out, nil
}

// parseICSTime handles the basic DATE, DATE-TIME, and UTC forms used by
// EXDATE and RECURRENCE-ID values.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}

func expandEvent(ev icsEvent, overrides []icsEvent, rangeStart, rangeEnd time.Time) []occurrence {
	if ev.RawRRule == "" {
		if ev.End.Before(rangeStart) || ev.Start.After(rangeEnd) {
			return nil
		}
		o := occurrence{ev: ev, start: ev.Start, end: ev.End}
		if ov, ok := overrideForStart(overrides, ev.Start); ok {
			o = occurrence{ev: ov, start: ov.Start, end: ov.End}
			o.ev.UID = ev.UID
		}
		return []occurrence{o}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("feed: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(rangeStart.In(ev.Start.Location()), rangeEnd.In(ev.Start.Location()), true)
	if len(starts) > maxOccurrencesPerEvent {
		appLog.Error("feed: recurrence expansion capped", errors.New("max occurrences reached"), "uid", ev.UID)
		starts = starts[:maxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]occurrence, 0, len(starts))
	for _, start := range starts {
		var end time.Time
		if ev.AllDay {
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
			end = start.Add(24 * time.Hour)
		} else {
			end = start.Add(dur)
		}
		o := occurrence{ev: ev, start: start, end: end}
		if ov, ok := overrideForStart(overrides, start); ok {
			o = occurrence{ev: ov, start: ov.Start, end: ov.End}
			o.ev.UID = ev.UID
		}
		out = append(out, o)
	}
	return out
}

func overrideForStart(overrides []icsEvent, start time.Time) (icsEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.In(start.Location()).Equal(start) {
			return ov, true
		}
	}
	return icsEvent{}, false
}
