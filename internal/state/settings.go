package state

const settingsKey = "settings"

// Layout values for the dashboard arrangement.
const (
	LayoutTop   = "top"
	LayoutSplit = "split"
)

// DisplaySettings are the persisted user display options. They sit in
// the middle of the option precedence chain: per-request overrides beat
// them, they beat the built-in defaults.
type DisplaySettings struct {
	// File is the feed source location (local path or URL).
	File string `json:"file"`
	// Count is the window-policy configuration value: an unsigned
	// integer string, "today", "tomorrow", "this_week", or "all".
	Count string `json:"count"`
	// Private reveals details of private events when set.
	Private bool `json:"private"`
	// Transparent renders the dashboard on a transparent background.
	Transparent bool `json:"trans"`
	// ShowHidden bypasses the hidden-identity filter.
	ShowHidden bool `json:"showHidden"`
	// Layout selects the presentation arrangement.
	Layout string `json:"layout"`
}

// DefaultDisplaySettings returns the built-in defaults.
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		File:   "calendar.csv",
		Count:  "tomorrow",
		Layout: LayoutTop,
	}
}

// Normalize fills zero values with defaults so partially-filled stored
// settings still behave.
func (s *DisplaySettings) Normalize() {
	if s.File == "" {
		s.File = "calendar.csv"
	}
	if s.Count == "" {
		s.Count = "tomorrow"
	}
	switch s.Layout {
	case LayoutTop, LayoutSplit:
	default:
		s.Layout = LayoutTop
	}
}

// LoadSettings reads persisted display settings, falling back to
// defaults when absent or corrupt.
func LoadSettings(store *Store) DisplaySettings {
	s := DefaultDisplaySettings()
	store.Load(settingsKey, &s)
	s.Normalize()
	return s
}

// SaveSettings persists display settings.
func SaveSettings(store *Store, s DisplaySettings) error {
	s.Normalize()
	return store.Save(settingsKey, s)
}
