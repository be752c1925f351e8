package notes

import (
	"maps"
	"slices"

	"github.com/starford/notesync/internal/models"
)

type change struct {
	kind string
	key  string
}

// Tx is the view of the index inside Exclusive. It is only valid for the
// duration of the callback.
type Tx struct {
	notes   map[string]*models.Note
	changed []change
}

// Keys returns a frozen, sorted snapshot of the current keys. Mutating the
// index while ranging over the snapshot is safe.
func (tx *Tx) Keys() []string {
	return slices.Sorted(maps.Keys(tx.notes))
}

// Get returns a copy of the note under key.
func (tx *Tx) Get(key string) (*models.Note, bool) {
	n, ok := tx.notes[key]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Has reports whether key is present.
func (tx *Tx) Has(key string) bool {
	_, ok := tx.notes[key]
	return ok
}

// Put stores a copy of note under key.
func (tx *Tx) Put(key string, note *models.Note) {
	kind := ChangeUpdated
	if _, ok := tx.notes[key]; !ok {
		kind = ChangeCreated
	}
	tx.notes[key] = note.Clone()
	tx.changed = append(tx.changed, change{kind: kind, key: key})
}

// Remove deletes key. Removing a missing key is a no-op.
func (tx *Tx) Remove(key string) {
	if _, ok := tx.notes[key]; !ok {
		return
	}
	delete(tx.notes, key)
	tx.changed = append(tx.changed, change{kind: ChangeDeleted, key: key})
}

// Len returns the number of notes.
func (tx *Tx) Len() int {
	return len(tx.notes)
}
