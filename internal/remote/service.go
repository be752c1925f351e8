// Package remote defines the contract of the authoritative note service and
// an HTTP client for the Simplenote API v2 wire format.
package remote

import (
	"context"

	"github.com/starford/notesync/internal/models"
)

// Service is the remote note store as seen by the sync engine.
//
// Every call either returns a usable value and a nil error, or a nil value
// and an error wrapping one of apperr.ErrRemoteUnavailable,
// apperr.ErrRemoteAuth, apperr.ErrRemoteConflict or apperr.ErrNotFound.
type Service interface {
	// ListNotes returns metadata for every non-deleted note.
	ListNotes(ctx context.Context) ([]models.NoteMetadata, error)
	// GetNote returns the full note, content included.
	GetNote(ctx context.Context, key string) (*models.Note, error)
	// UpdateNote creates the note when note.Key is empty and updates it
	// otherwise. It returns the server's canonical copy.
	UpdateNote(ctx context.Context, note *models.Note) (*models.Note, error)
}
