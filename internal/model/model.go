// Package model defines the event record value type shared by the feed
// ingestion, reconciliation, and persistence layers.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// IdentitySeparator joins the raw start value and summary when no
// externally-assigned identity is present. Neither field is expected to
// contain it in a position that matters; two records with identical start
// and summary intentionally collide.
const IdentitySeparator = "_"

// PlaceholderSummary is substituted when a feed row has no subject.
const PlaceholderSummary = "No subject"

// RSVP is the normalized, lowercase response status. Free-text values
// outside the known set are preserved as-is.
type RSVP string

const (
	RSVPAccepted  RSVP = "accepted"
	RSVPDeclined  RSVP = "declined"
	RSVPTentative RSVP = "tentative"
	RSVPNone      RSVP = ""
)

// Style carries the optional display colors of a user-authored record.
type Style struct {
	Background string `json:"bgColor,omitempty"`
	Foreground string `json:"textColor,omitempty"`
}

// Record represents one schedulable occurrence. Records are constructed
// once and treated as immutable afterwards; identity is always recomputed
// from the snapshot, never cached.
type Record struct {
	// ExternalID is an externally-assigned identity. When non-empty it
	// takes precedence over the derived start+summary identity.
	ExternalID string

	Summary string

	// RawStart/RawEnd hold the verbatim feed values. Identity derives
	// from RawStart so that re-parsing identical feed text yields
	// identical identities regardless of timezone normalization.
	RawStart string
	RawEnd   string

	Start    time.Time
	End      time.Time
	EndValid bool

	Description string
	Images      []string

	RSVP        RSVP
	OutOfOffice bool
	Private     bool

	// IsOverride marks records the user authored or edited locally.
	IsOverride bool

	// SourceIdentity links an override to the feed record it replaces.
	// Empty for feed records and brand-new user records.
	SourceIdentity string

	Style Style
}

// Identity returns the deduplication key for the record.
func (r Record) Identity() string {
	if r.ExternalID != "" {
		return r.ExternalID
	}
	return r.RawStart + IdentitySeparator + r.Summary
}

// Recognized feed row columns. Header matching is case-insensitive; the
// feed layer lowercases keys before handing rows over.
const (
	ColID          = "id"
	ColSubject     = "subject"
	ColStart       = "start"
	ColEnd         = "end"
	ColDescription = "description"
	ColRSVP        = "rsvp"
	ColOOO         = "ooo"
	ColPrivate     = "private"
)

var (
	errNoStart = errors.New("model: row has no usable start")
	errNoEnd   = errors.New("model: row has no usable end")
)

// FromRow converts one raw feed row into a Record. Rows without a
// parseable start or end are rejected; callers drop them silently since
// malformed feed rows are expected and tolerated.
func FromRow(row map[string]string) (Record, error) {
	var rec Record

	rec.Summary = row[ColSubject]
	if rec.Summary == "" {
		rec.Summary = PlaceholderSummary
	}

	rec.RawStart = row[ColStart]
	start, err := ParseTimestamp(rec.RawStart)
	if err != nil {
		return Record{}, errNoStart
	}
	rec.Start = start

	rec.RawEnd = row[ColEnd]
	end, err := ParseTimestamp(rec.RawEnd)
	if err != nil {
		return Record{}, errNoEnd
	}
	rec.End = end
	rec.EndValid = true

	rec.ExternalID = strings.TrimSpace(row[ColID])
	rec.RSVP = NormalizeRSVP(row[ColRSVP])
	rec.OutOfOffice = isYes(row[ColOOO])
	rec.Private = isYes(row[ColPrivate])
	rec.Description, rec.Images = DecodeDescription(row[ColDescription])

	return rec, nil
}

// NormalizeRSVP lowercases and trims a free-text response status.
func NormalizeRSVP(s string) RSVP {
	return RSVP(strings.ToLower(strings.TrimSpace(s)))
}

func isYes(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}

// timestampLayouts lists the accepted feed timestamp forms, most
// specific first. Layouts without a zone are interpreted as local time.
var timestampLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02", false},
}

// ParseTimestamp parses a feed timestamp. Empty or unparseable values
// return an error; per the error handling contract they are treated as
// "permanently filtered out" rather than raised further.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("model: empty timestamp")
	}
	for _, l := range timestampLayouts {
		if l.zoned {
			if t, err := time.Parse(l.layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(l.layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("model: unparseable timestamp: " + s)
}

// descriptionPayload is the JSON envelope used when images are attached
// to a description. A plain-text description is stored verbatim.
type descriptionPayload struct {
	Images []string `json:"images,omitempty"`
	Text   string   `json:"text"`
}

// EncodeDescription serializes text plus attached image references into
// the persisted description form. Without images the text passes through
// unchanged.
func EncodeDescription(text string, images []string) string {
	if len(images) == 0 {
		return text
	}
	data, err := json.Marshal(descriptionPayload{Images: images, Text: text})
	if err != nil {
		return text
	}
	return string(data)
}

// DecodeDescription splits a stored description into freeform text and
// attached image references. Non-JSON descriptions are plain text.
func DecodeDescription(s string) (string, []string) {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return s, nil
	}
	var p descriptionPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return s, nil
	}
	if len(p.Images) == 0 && p.Text == "" {
		return s, nil
	}
	return p.Text, p.Images
}
