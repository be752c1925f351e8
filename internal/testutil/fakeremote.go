package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/remote"
)

// FakeRemote is an in-memory remote.Service. Every update bumps syncnum,
// and creates get keys "srv-1", "srv-2", ...
type FakeRemote struct {
	mu     sync.Mutex
	notes  map[string]*models.Note
	nextID int

	// Errors returned by every call of the operation while set.
	ListErr   error
	GetErr    error
	UpdateErr error
	// UpdateErrFor fails updates of notes whose content matches the map key.
	UpdateErrFor map[string]error
	// GetErrFor fails gets of the given server keys.
	GetErrFor map[string]error

	// BeforeList runs (without the lock) before ListNotes answers.
	BeforeList func()

	Lists, Gets, Updates int
}

var _ remote.Service = (*FakeRemote)(nil)

// NewFakeRemote returns an empty fake service.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{notes: make(map[string]*models.Note)}
}

// Put stores n on the server as-is, defaulting syncnum to 1.
func (f *FakeRemote) Put(n *models.Note) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := n.Clone()
	if c.Syncnum == 0 {
		c.Syncnum = 1
	}
	f.notes[c.Key] = c
}

// Edit changes the content of a server note as another device would.
func (f *FakeRemote) Edit(key, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.notes[key]
	n.Content = content
	n.Syncnum++
	n.Version++
}

// Remove deletes a server note.
func (f *FakeRemote) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notes, key)
}

// Note returns a copy of the server note.
func (f *FakeRemote) Note(key string) (*models.Note, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[key]
	return n.Clone(), ok
}

// Keys returns the sorted server keys.
func (f *FakeRemote) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.notes))
}

// ResetCounts zeroes the call counters.
func (f *FakeRemote) ResetCounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lists, f.Gets, f.Updates = 0, 0, 0
}

// ListNotes implements remote.Service.
func (f *FakeRemote) ListNotes(ctx context.Context) ([]models.NoteMetadata, error) {
	if f.BeforeList != nil {
		f.BeforeList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lists++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]models.NoteMetadata, 0, len(f.notes))
	for _, k := range slices.Sorted(maps.Keys(f.notes)) {
		n := f.notes[k]
		out = append(out, models.NoteMetadata{Key: k, Syncnum: n.Syncnum, Version: n.Version, ModifyDate: n.ModifyDate})
	}
	return out, nil
}

// GetNote implements remote.Service.
func (f *FakeRemote) GetNote(ctx context.Context, key string) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	if err := f.GetErrFor[key]; err != nil {
		return nil, err
	}
	n, ok := f.notes[key]
	if !ok {
		return nil, fmt.Errorf("fake: get %s: %w", key, apperr.ErrNotFound)
	}
	return n.Clone(), nil
}

// UpdateNote implements remote.Service.
func (f *FakeRemote) UpdateNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	if err := f.UpdateErrFor[note.Content]; err != nil {
		return nil, err
	}

	n := note.Clone()
	n.LocalKey = ""
	n.LocalTouch = false
	n.LModifyDate = 0
	if n.Key == "" {
		f.nextID++
		n.Key = fmt.Sprintf("srv-%d", f.nextID)
		n.Syncnum = 1
		n.Version = 1
	} else if prev, ok := f.notes[n.Key]; ok {
		n.Syncnum = prev.Syncnum + 1
		n.Version = prev.Version + 1
	} else {
		n.Syncnum = 1
	}
	f.notes[n.Key] = n
	return n.Clone(), nil
}
