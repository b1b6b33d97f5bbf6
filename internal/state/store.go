// Package state persists user-authored dashboard state (event overrides,
// the hidden-identity set, and display settings) in a disk-backed
// key/value store with JSON values.
package state

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/peterbourgon/diskv/v3"

	appLog "eventboard/internal/log"
)

// Store is a thin JSON codec over diskv. A missing key yields the zero
// value; corrupt stored JSON falls back to the zero value rather than
// propagating, since the dashboard must keep displaying something.
type Store struct {
	d *diskv.Diskv
}

// Open creates a Store rooted at dir.
func Open(dir string) *Store {
	flat := func(string) []string { return []string{} }
	return &Store{d: diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    flat,
		CacheSizeMax: 1024 * 1024, // 1MB
	})}
}

// Load unmarshals the value at key into v. Returns false when the key is
// absent or its contents could not be decoded; v is left untouched then.
func (s *Store) Load(key string, v any) bool {
	data, err := s.d.Read(key)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			appLog.Error("state: read failed", err, "key", key)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		appLog.Error("state: corrupt stored value, using defaults", err, "key", key)
		return false
	}
	return true
}

// Save marshals v and writes it at key.
func (s *Store) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.d.Write(key, data)
}
