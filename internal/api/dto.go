package api

import (
	"time"

	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/noteservice"
	"github.com/starford/notesync/internal/reconcile"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title string `json:"title" example:"Shopping list" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note. Content may be
// empty but must be present.
type UpdateNoteRequest struct {
	Content *string `json:"content" example:"Shopping list\nmilk" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// BrowseItem is one row of the search mirror.
type BrowseItem struct {
	Key      string    `json:"key" example:"455f66ee936711e19657591a71011082"`
	Title    string    `json:"title" example:"Shopping list"`
	Tags     []string  `json:"tags"`
	Synced   bool      `json:"synced"`
	Modified time.Time `json:"modified"`
}

// BrowseResponse wraps a page of the search mirror.
type BrowseResponse struct {
	Notes []BrowseItem `json:"notes" validate:"required"`
	Total int          `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// SyncResponse reports what a sync pass did.
type SyncResponse struct {
	Pushed     int     `json:"pushed"`
	PushFailed int     `json:"push_failed"`
	Pulled     int     `json:"pulled"`
	Inserted   int     `json:"inserted"`
	Pruned     int     `json:"pruned"`
	Seconds    float64 `json:"seconds"`
}

// SyncErrorResponse is returned when a sync pass fails.
type SyncErrorResponse struct {
	Error      string       `json:"error"`
	Phase      string       `json:"phase,omitempty" example:"pull"`
	Reconciled int          `json:"reconciled"`
	Summary    SyncResponse `json:"summary"`
}

func newSyncResponse(s reconcile.Summary) SyncResponse {
	return SyncResponse{
		Pushed:     s.Pushed,
		PushFailed: s.PushFailed,
		Pulled:     s.Pulled,
		Inserted:   s.Inserted,
		Pruned:     s.Pruned,
		Seconds:    s.Duration.Seconds(),
	}
}
