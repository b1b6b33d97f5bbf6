package state

import (
	"sort"
	"sync"
	"time"

	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

const hiddenKey = "hidden"

// VisibilityStore is the persisted set of identities hidden from the
// default view. No expiry timestamp is stored; expiry is computed lazily
// against the underlying record's end at sweep time.
type VisibilityStore struct {
	mu    sync.Mutex
	store *Store
	ids   map[string]bool
}

// OpenVisibility loads the persisted hidden-identity set.
func OpenVisibility(store *Store) *VisibilityStore {
	v := &VisibilityStore{
		store: store,
		ids:   make(map[string]bool),
	}
	var stored []string
	store.Load(hiddenKey, &stored)
	for _, id := range stored {
		v.ids[id] = true
	}
	return v
}

// Toggle flips membership for id and returns the resulting hidden state.
func (v *VisibilityStore) Toggle(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	hidden := !v.ids[id]
	if hidden {
		v.ids[id] = true
	} else {
		delete(v.ids, id)
	}
	v.persistLocked()
	return hidden
}

// IsHidden reports whether id is currently hidden.
func (v *VisibilityStore) IsHidden(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ids[id]
}

// Sweep removes hidden identities whose record no longer exists in known
// or whose end is already past. Idempotent; runs synchronously before
// every visibility filtering pass since "now" only has meaning at read
// time. Returns the removed identities.
func (v *VisibilityStore) Sweep(known map[string]model.Record, now time.Time) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var removed []string
	for id := range v.ids {
		rec, ok := known[id]
		if !ok || !rec.EndValid || rec.End.Before(now) {
			delete(v.ids, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		v.persistLocked()
		appLog.Debug("state: swept expired hidden entries", "count", len(removed))
	}
	return removed
}

// persistLocked writes the current set. Callers hold v.mu, so each
// mutation reaches disk in the order it was applied.
func (v *VisibilityStore) persistLocked() {
	stored := make([]string, 0, len(v.ids))
	for id := range v.ids {
		stored = append(stored, id)
	}
	sort.Strings(stored)
	if err := v.store.Save(hiddenKey, stored); err != nil {
		appLog.Error("state: persist hidden set failed", err)
	}
}
