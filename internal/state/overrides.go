package state

import (
	"sync"

	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

const overridesKey = "overrides"

// OverrideStore holds user-authored and user-edited event records, keyed
// by identity. Entries persist across restarts until explicitly deleted.
type OverrideStore struct {
	mu    sync.Mutex
	store *Store
	recs  map[string]model.Record
	order []string
}

// OpenOverrides loads the persisted override collection.
func OpenOverrides(store *Store) *OverrideStore {
	o := &OverrideStore{
		store: store,
		recs:  make(map[string]model.Record),
	}

	var stored []StoredRecord
	store.Load(overridesKey, &stored)
	for _, sr := range stored {
		rec := FromStored(sr)
		rec.IsOverride = true
		id := rec.Identity()
		if _, ok := o.recs[id]; !ok {
			o.order = append(o.order, id)
		}
		o.recs[id] = rec
	}
	if len(stored) > 0 {
		appLog.Info("state: loaded overrides", "count", len(o.order))
	}
	return o
}

// Upsert saves a record at its own identity. Editing a record whose
// identity-determining fields changed results in a new key; the stale
// entry at the old identity is removed by the caller via SourceIdentity
// handling during merge, not here.
func (o *OverrideStore) Upsert(rec model.Record) error {
	rec.IsOverride = true
	id := rec.Identity()

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.recs[id]; !ok {
		o.order = append(o.order, id)
	}
	o.recs[id] = rec
	return o.persistLocked()
}

// Delete removes the override at id. Reports whether it existed.
func (o *OverrideStore) Delete(id string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.recs[id]
	if !ok {
		return false, nil
	}
	delete(o.recs, id)
	for i, existing := range o.order {
		if existing == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return true, o.persistLocked()
}

// Get returns the override at id.
func (o *OverrideStore) Get(id string) (model.Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.recs[id]
	return rec, ok
}

// All returns every override in insertion order.
func (o *OverrideStore) All() []model.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Record, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.recs[id])
	}
	return out
}

// persistLocked writes the current collection. Callers hold o.mu, so
// each mutation reaches disk in the order it was applied.
func (o *OverrideStore) persistLocked() error {
	stored := make([]StoredRecord, 0, len(o.order))
	for _, id := range o.order {
		stored = append(stored, ToStored(o.recs[id]))
	}
	if err := o.store.Save(overridesKey, stored); err != nil {
		appLog.Error("state: persist overrides failed", err)
		return err
	}
	return nil
}
