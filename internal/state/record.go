package state

import (
	"eventboard/internal/model"
)

// StoredRecord is the persisted, JSON-serializable shape of an event
// override. It retains enough fields to round-trip identity, times,
// flags, and style.
type StoredRecord struct {
	ID          string   `json:"id,omitempty"`
	Summary     string   `json:"summary"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	RSVP        string   `json:"rsvp,omitempty"`
	OOO         bool     `json:"ooo,omitempty"`
	Private     bool     `json:"private,omitempty"`
	IsOverride  bool     `json:"isOverride"`
	Replaces    string   `json:"replaces,omitempty"`
	BgColor     string   `json:"bgColor,omitempty"`
	TextColor   string   `json:"textColor,omitempty"`
}

// ToStored converts a record into its persisted form.
func ToStored(rec model.Record) StoredRecord {
	return StoredRecord{
		ID:          rec.ExternalID,
		Summary:     rec.Summary,
		Start:       rec.RawStart,
		End:         rec.RawEnd,
		Description: rec.Description,
		Images:      rec.Images,
		RSVP:        string(rec.RSVP),
		OOO:         rec.OutOfOffice,
		Private:     rec.Private,
		IsOverride:  rec.IsOverride,
		Replaces:    rec.SourceIdentity,
		BgColor:     rec.Style.Background,
		TextColor:   rec.Style.Foreground,
	}
}

// FromStored reconstructs a record from its persisted form. Times are
// re-parsed from the raw strings so the derived identity is unchanged; an
// unparseable end leaves EndValid false, which keeps the record
// permanently filtered out of visible sets.
func FromStored(sr StoredRecord) model.Record {
	rec := model.Record{
		ExternalID:     sr.ID,
		Summary:        sr.Summary,
		RawStart:       sr.Start,
		RawEnd:         sr.End,
		Description:    sr.Description,
		Images:         sr.Images,
		RSVP:           model.NormalizeRSVP(sr.RSVP),
		OutOfOffice:    sr.OOO,
		Private:        sr.Private,
		IsOverride:     sr.IsOverride,
		SourceIdentity: sr.Replaces,
		Style: model.Style{
			Background: sr.BgColor,
			Foreground: sr.TextColor,
		},
	}
	if start, err := model.ParseTimestamp(sr.Start); err == nil {
		rec.Start = start
	}
	if end, err := model.ParseTimestamp(sr.End); err == nil {
		rec.End = end
		rec.EndValid = true
	}
	return rec
}
