// Package catalog implements the event reconciliation and visibility
// engine: it merges the feed-sourced collection with user overrides into
// one canonical set and derives the time-filtered visible subset.
package catalog

import (
	"sort"
	"sync"
	"time"

	appLog "eventboard/internal/log"
	"eventboard/internal/model"
	"eventboard/internal/state"
)

// autoRevealWindow bounds how long after its start a record still
// triggers the one-time details auto-reveal.
const autoRevealWindow = 10 * time.Second

// recordSet is an insertion-ordered identity -> record map. Replacing an
// existing identity keeps its original position, matching last-wins feed
// collision handling.
type recordSet struct {
	order []string
	byID  map[string]model.Record
}

func newRecordSet() *recordSet {
	return &recordSet{byID: make(map[string]model.Record)}
}

func (s *recordSet) set(id string, rec model.Record) {
	if _, ok := s.byID[id]; !ok {
		s.order = append(s.order, id)
	}
	s.byID[id] = rec
}

func (s *recordSet) delete(id string) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *recordSet) records() []model.Record {
	out := make([]model.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// ViewOptions carry the per-read display options resolved by the caller
// (request override > persisted settings > default).
type ViewOptions struct {
	// Window is the window-policy configuration value.
	Window string
	// ShowHidden bypasses the hidden-identity filter.
	ShowHidden bool
}

// Catalog owns the feed-sourced collection and composes the override and
// visibility stores. The refresh loop is the single logical writer; the
// HTTP surface reads concurrently, hence the RWMutex.
type Catalog struct {
	mu        sync.RWMutex
	feed      *recordSet
	overrides *state.OverrideStore
	hidden    *state.VisibilityStore
	revealed  map[string]bool
}

// New wires a Catalog to its stores.
func New(overrides *state.OverrideStore, hidden *state.VisibilityStore) *Catalog {
	return &Catalog{
		feed:      newRecordSet(),
		overrides: overrides,
		hidden:    hidden,
		revealed:  make(map[string]bool),
	}
}

// IngestFeed replaces the entire feed-sourced collection. Rows lacking a
// usable summary, start, or end are dropped silently; malformed feed
// rows are expected and tolerated. Overrides are untouched.
func (c *Catalog) IngestFeed(rows []map[string]string) {
	next := newRecordSet()
	dropped := 0
	for _, row := range rows {
		rec, err := model.FromRow(row)
		if err != nil {
			dropped++
			continue
		}
		// Later rows with a colliding identity overwrite earlier ones.
		next.set(rec.Identity(), rec)
	}

	c.mu.Lock()
	c.feed = next
	c.mu.Unlock()

	appLog.Info("catalog: feed ingested", "rows", len(rows), "records", len(next.order), "dropped", dropped)
}

// Merge produces the canonical identity -> record collection: the feed
// collection with override entries applied on top. An override declaring
// a source identity first unlinks the feed entry it supersedes, then is
// inserted at its own identity, which may differ when editing changed
// the identity-determining fields. Idempotent.
func (c *Catalog) Merge() map[string]model.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.merge().byID
}

func (c *Catalog) merge() *recordSet {
	merged := newRecordSet()
	for _, id := range c.feed.order {
		merged.set(id, c.feed.byID[id])
	}
	for _, rec := range c.overrides.All() {
		if rec.SourceIdentity != "" {
			merged.delete(rec.SourceIdentity)
		}
		// An override unconditionally replaces whatever occupies its
		// identity at this point.
		merged.set(rec.Identity(), rec)
	}
	return merged
}

// Lookup returns the merged record at id.
func (c *Catalog) Lookup(id string) (model.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.merge().byID[id]
	return rec, ok
}

// VisibleEvents computes the visible subset of the merged catalog at
// now. It sweeps the hidden set first, filters hidden (unless
// ShowHidden), declined, out-of-office, and ended records, then splits
// the remainder into all-day-occurring-today and timed buckets. The
// timed bucket is stably sorted by start and narrowed by the window
// policy; the all-day bucket is never windowed or count-limited.
func (c *Catalog) VisibleEvents(now time.Time, opts ViewOptions) (allDay, timed []model.Record) {
	c.mu.RLock()
	merged := c.merge()
	c.mu.RUnlock()

	c.hidden.Sweep(merged.byID, now)

	for _, rec := range merged.records() {
		if !rec.EndValid || rec.End.Before(now) {
			continue
		}
		if rec.RSVP == model.RSVPDeclined {
			continue
		}
		if rec.OutOfOffice {
			continue
		}
		if !opts.ShowHidden && c.hidden.IsHidden(rec.Identity()) {
			continue
		}
		if IsAllDay(rec) && occursOnDay(rec, now) {
			allDay = append(allDay, rec)
		} else {
			timed = append(timed, rec)
		}
	}

	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].Start.Before(timed[j].Start)
	})

	timed = ApplyWindow(opts.Window, timed, now)
	return allDay, timed
}

// Reveal returns the identities of visible timed records whose
// happening-now state began within the auto-reveal window and have not
// been reported before. Candidates come from the same filtered set as
// VisibleEvents, so hidden, declined, out-of-office, and windowed-out
// records neither reveal nor consume their one reveal. Each identity is
// reported at most once per process lifetime; all-day records never
// auto-reveal.
func (c *Catalog) Reveal(now time.Time, opts ViewOptions) []string {
	_, timed := c.VisibleEvents(now, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, rec := range timed {
		if Classify(rec, now) != StateHappeningNow {
			continue
		}
		if now.Sub(rec.Start) > autoRevealWindow {
			continue
		}
		id := rec.Identity()
		if c.revealed[id] {
			continue
		}
		c.revealed[id] = true
		out = append(out, id)
	}
	return out
}
