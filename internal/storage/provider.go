// Package storage persists note records on disk, one JSON file per key.
package storage

import "github.com/starford/notesync/internal/models"

// Provider is the interface for local note persistence. It holds no sync logic.
type Provider interface {
	// LoadAll reads every note file. Map keys come from filenames, not file contents.
	LoadAll() (map[string]*models.Note, error)
	// Load reads the note stored under key.
	Load(key string) (*models.Note, error)
	// Save atomically writes note under key.
	Save(key string, note *models.Note) error
	// Delete removes the note stored under key. A missing file is not an error.
	Delete(key string) error
	// Path returns the absolute filename for key.
	Path(key string) string
}
