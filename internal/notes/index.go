// Package notes holds the in-memory note index: the single serialized owner
// of every note record between the local store and the sync engine.
package notes

import (
	"cmp"
	"fmt"
	"iter"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/storage"
)

// Change kinds reported to the OnChange callback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeFunc is called after a note is created, edited or reloaded.
type ChangeFunc func(kind, key string)

// Option configures an Index.
type Option func(*Index)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Index) { i.now = now }
}

// WithKeyGenerator overrides the random local key generator.
func WithKeyGenerator(gen func() string) Option {
	return func(i *Index) { i.newKey = gen }
}

// OnChange registers a callback for user-visible note changes.
func OnChange(fn ChangeFunc) Option {
	return func(i *Index) { i.onChange = fn }
}

// Index maps index keys to note records. All access is serialized by mu.
type Index struct {
	mu    sync.Mutex
	notes map[string]*models.Note
	store storage.Provider

	now      func() time.Time
	newKey   func() string
	onChange ChangeFunc
}

// New returns an empty index backed by store.
func New(store storage.Provider, opts ...Option) *Index {
	i := &Index{
		notes:  make(map[string]*models.Note),
		store:  store,
		now:    time.Now,
		newKey: RandomKey,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Load builds the index from every record in store.
func Load(store storage.Provider, opts ...Option) (*Index, error) {
	all, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("notes: load: %w", err)
	}
	i := New(store, opts...)
	i.notes = all
	return i, nil
}

// RandomKey returns 32 random hex characters, the shape of server keys.
func RandomKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create adds a new local-only note whose content is title and returns its key.
// The note lives in memory until saved.
func (i *Index) Create(title string) (string, error) {
	i.mu.Lock()
	key := i.newKey()
	for attempts := 0; ; attempts++ {
		if _, taken := i.notes[key]; !taken && storage.ValidKey(key) == nil {
			break
		}
		if attempts >= 100 {
			i.mu.Unlock()
			return "", fmt.Errorf("notes: create: no free key after %d attempts: %w", attempts, apperr.ErrConflict)
		}
		key = i.newKey()
	}

	ts := models.FromTime(i.now())
	i.notes[key] = &models.Note{
		LocalKey:    key,
		Content:     title,
		CreateDate:  ts,
		ModifyDate:  ts,
		LModifyDate: ts,
	}
	i.mu.Unlock()

	i.notify(ChangeCreated, key)
	return key, nil
}

// Search returns a lazy sequence of notes whose content matches pattern
// (a regular expression; empty matches all). Each range over the sequence
// takes a fresh snapshot, so it can be iterated more than once. Results are
// ordered by modification time, newest first, then by key.
func (i *Index) Search(pattern string) (iter.Seq[models.NoteSummary], error) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("notes: search pattern: %w", err)
		}
	}
	return func(yield func(models.NoteSummary) bool) {
		for _, s := range i.snapshot(re) {
			if !yield(s) {
				return
			}
		}
	}, nil
}

// SearchAll collects Search into a slice.
func (i *Index) SearchAll(pattern string) ([]models.NoteSummary, error) {
	seq, err := i.Search(pattern)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

func (i *Index) snapshot(re *regexp.Regexp) []models.NoteSummary {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]models.NoteSummary, 0, len(i.notes))
	for k, n := range i.notes {
		if re != nil && !re.MatchString(n.Content) {
			continue
		}
		out = append(out, models.NoteSummary{Key: k, Title: n.Title(), Modified: n.ModifyDate})
	}
	slices.SortFunc(out, func(a, b models.NoteSummary) int {
		if c := cmp.Compare(b.Modified, a.Modified); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// GetContent returns the content of the note stored under key.
func (i *Index) GetContent(key string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	n, ok := i.notes[key]
	if !ok {
		return "", notFound(key)
	}
	return n.Content, nil
}

// Get returns a copy of the note stored under key.
func (i *Index) Get(key string) (*models.Note, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	n, ok := i.notes[key]
	if !ok {
		return nil, notFound(key)
	}
	return n.Clone(), nil
}

// SetContent replaces the content of a note and marks it for the next push.
// This is the only path that mutates content outside of sync.
func (i *Index) SetContent(key, content string) error {
	i.mu.Lock()
	n, ok := i.notes[key]
	if !ok {
		i.mu.Unlock()
		return notFound(key)
	}
	if n.Content == content {
		i.mu.Unlock()
		return nil
	}
	ts := models.FromTime(i.now())
	n.Content = content
	n.LocalTouch = true
	n.ModifyDate = ts
	n.LModifyDate = ts
	i.mu.Unlock()

	i.notify(ChangeUpdated, key)
	return nil
}

// Save persists the current record for key through the store.
func (i *Index) Save(key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	n, ok := i.notes[key]
	if !ok {
		return notFound(key)
	}
	return i.store.Save(key, n)
}

// Reload folds a record read from disk after an external write into the
// index and reports whether anything changed. New content or tags count as
// an edit: the note is marked for push and its modification times are
// refreshed, as SetContent does. A disk copy older than the in-memory record
// is ignored.
func (i *Index) Reload(key string, note *models.Note) bool {
	i.mu.Lock()
	cur, ok := i.notes[key]
	if ok && (cur.Equal(note) || staleCopy(cur, note)) {
		i.mu.Unlock()
		return false
	}
	next := note.Clone()
	if ok && (cur.Content != next.Content || !slices.Equal(cur.Tags, next.Tags)) {
		ts := models.FromTime(i.now())
		next.LocalTouch = true
		next.ModifyDate = ts
		next.LModifyDate = ts
	}
	i.notes[key] = next
	i.mu.Unlock()

	kind := ChangeUpdated
	if !ok {
		kind = ChangeCreated
	}
	i.notify(kind, key)
	return true
}

// staleCopy reports whether disk predates cur: an older server revision,
// or a local edit that has not been saved yet.
func staleCopy(cur, disk *models.Note) bool {
	switch {
	case disk.Syncnum < cur.Syncnum:
		return true
	case cur.LModifyDate > disk.LModifyDate:
		return true
	default:
		return cur.LocalTouch && !disk.LocalTouch
	}
}

// Len returns the number of notes.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.notes)
}

// Keys returns a sorted snapshot of every index key.
func (i *Index) Keys() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Sorted(maps.Keys(i.notes))
}

// Store returns the backing local store.
func (i *Index) Store() storage.Provider {
	return i.store
}

// Exclusive runs fn while holding the index lock. No other index operation
// interleaves with fn. fn must not call back into i.
func (i *Index) Exclusive(fn func(tx *Tx) error) error {
	var changed []change
	err := func() error {
		i.mu.Lock()
		defer i.mu.Unlock()
		tx := &Tx{notes: i.notes}
		defer func() {
			changed = tx.changed
			tx.notes = nil
		}()
		return fn(tx)
	}()

	for _, c := range changed {
		i.notify(c.kind, c.key)
	}
	return err
}

func (i *Index) notify(kind, key string) {
	if i.onChange != nil {
		i.onChange(kind, key)
	}
}

func notFound(key string) error {
	return fmt.Errorf("notes: %q: %w", key, apperr.ErrNotFound)
}
