// Package keystore provides read access to the key datastore: one row per
// sequence index holding the target address and, once solved, the key.
package keystore

import (
	"fmt"
	"sort"

	"github.com/mahdiidarabi/keyladder/internal/keyspace"
)

// Source is read-only access to datastore rows.
type Source interface {
	// Get returns the row for sequence index n.  The boolean is false when
	// the datastore has no row for n.
	Get(n uint) (keyspace.Entry, bool, error)

	// List returns the rows with indices in [low, high] in ascending index
	// order.  Missing indices are skipped.
	List(low, high uint) ([]keyspace.Entry, error)
}

// Memory is a Source holding every row in memory, typically loaded from a
// CSV or JSON file.
type Memory struct {
	entries map[uint]keyspace.Entry
}

// Ensure Memory implements the Source interface.
var _ Source = (*Memory)(nil)

// NewMemory validates entries and returns a source over them.  Duplicate
// indices are rejected.
func NewMemory(entries []keyspace.Entry) (*Memory, error) {
	m := &Memory{entries: make(map[uint]keyspace.Entry, len(entries))}
	for i := range entries {
		e := entries[i]
		if err := validateEntry(&e); err != nil {
			return nil, err
		}
		if _, ok := m.entries[e.Index]; ok {
			str := fmt.Sprintf("duplicate row for puzzle %d", e.Index)
			return nil, makeError(ErrMalformedRow, str)
		}
		m.entries[e.Index] = e
	}
	return m, nil
}

// LoadMemory reads a CSV or JSON datastore file into a Memory source.
func LoadMemory(path string) (*Memory, error) {
	entries, err := Load(path)
	if err != nil {
		return nil, err
	}
	m, err := NewMemory(entries)
	if err != nil {
		return nil, err
	}
	log.Debugf("Loaded %d datastore rows from %s", len(m.entries), path)
	return m, nil
}

// Get returns the row for sequence index n.
func (m *Memory) Get(n uint) (keyspace.Entry, bool, error) {
	e, ok := m.entries[n]
	return e, ok, nil
}

// List returns the rows with indices in [low, high].
func (m *Memory) List(low, high uint) ([]keyspace.Entry, error) {
	var out []keyspace.Entry
	for idx, e := range m.entries {
		if idx >= low && idx <= high {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Index < out[j].Index
	})
	return out, nil
}

// Len returns the number of rows.
func (m *Memory) Len() int {
	return len(m.entries)
}
