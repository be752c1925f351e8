// Package noteservice is the single entry point for the HTTP API, the CLI and
// the MCP server. It coordinates the note index, the search mirror and the
// sync engine.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/checksum"
	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/notes"
	"github.com/starford/notesync/internal/parser"
	"github.com/starford/notesync/internal/reconcile"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Checksum string    `json:"checksum"`
	Tags     []string  `json:"tags"`
	Synced   bool      `json:"synced"`
	Dirty    bool      `json:"dirty"`
	Syncnum  int       `json:"syncnum,omitempty"`
	Version  int       `json:"version,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Modified time.Time `json:"modified"`
}

// Service coordinates index, mirror and sync operations.
type Service struct {
	idx    *notes.Index
	db     *index.DB
	syncer reconcile.Syncer
	logger *slog.Logger
}

// NewService creates a new note service. db and syncer may be nil, which
// disables full-text search and sync respectively.
func NewService(idx *notes.Index, db *index.DB, syncer reconcile.Syncer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{idx: idx, db: db, syncer: syncer, logger: logger}
}

// GetNote returns one note.
func (s *Service) GetNote(_ context.Context, key string) (*NoteDetail, error) {
	n, err := s.idx.Get(key)
	if err != nil {
		return nil, err
	}
	return buildNoteDetail(key, n), nil
}

// CreateNote adds a local note whose content is title and persists it.
// The note reaches the server on the next sync.
func (s *Service) CreateNote(_ context.Context, title string) (*NoteDetail, error) {
	key, err := s.idx.Create(title)
	if err != nil {
		return nil, err
	}
	if err := s.idx.Save(key); err != nil {
		return nil, err
	}
	n, err := s.idx.Get(key)
	if err != nil {
		return nil, err
	}
	return buildNoteDetail(key, n), nil
}

// UpdateNote replaces the content of a note. A non-empty ifMatch must equal
// the checksum of the current content.
func (s *Service) UpdateNote(_ context.Context, key, content, ifMatch string) (*NoteDetail, error) {
	if ifMatch != "" {
		current, err := s.idx.GetContent(key)
		if err != nil {
			return nil, err
		}
		if checksum.String(current) != ifMatch {
			return nil, apperr.ErrConflict
		}
	}
	if err := s.idx.SetContent(key, content); err != nil {
		return nil, err
	}
	if err := s.idx.Save(key); err != nil {
		return nil, err
	}
	n, err := s.idx.Get(key)
	if err != nil {
		return nil, err
	}
	return buildNoteDetail(key, n), nil
}

// ListNotes returns notes whose content matches the regular expression
// pattern (all notes when empty), newest first.
func (s *Service) ListNotes(_ context.Context, pattern string) ([]NoteListItem, error) {
	seq, err := s.idx.Search(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	items := []NoteListItem{}
	for sum := range seq {
		items = append(items, NoteListItem{Key: sum.Key, Title: sum.Title, Modified: sum.Modified.Time()})
	}
	return items, nil
}

// BrowseNotes pages through the search mirror, optionally filtered by tag.
func (s *Service) BrowseNotes(_ context.Context, limit, offset int, tag string) ([]index.NoteRow, int, error) {
	if s.db == nil {
		return nil, 0, apperr.ErrUnavailable
	}
	return s.db.ListNotes(limit, offset, tag)
}

// Tags returns tag usage counts from the search mirror.
func (s *Service) Tags(_ context.Context) (map[string]int, error) {
	if s.db == nil {
		return nil, apperr.ErrUnavailable
	}
	return s.db.Tags()
}

// Search runs a full-text query against the search mirror.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return nil, apperr.ErrUnavailable
	}
	return s.db.Search(query, limit)
}

// Sync runs one full sync pass.
func (s *Service) Sync(ctx context.Context) (reconcile.Summary, error) {
	if s.syncer == nil {
		return reconcile.Summary{}, apperr.ErrUnavailable
	}
	return s.syncer.RunFullSync(ctx)
}

// Mirror folds one note index change into the search mirror. It has the
// shape of notes.ChangeFunc minus the kind.
func (s *Service) Mirror(key string) {
	if s.db == nil {
		return
	}
	if err := index.Apply(s.db, s.idx, key); err != nil {
		s.logger.Warn("mirror update failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// RebuildMirror reconciles the whole search mirror with the note index.
func (s *Service) RebuildMirror() error {
	if s.db == nil {
		return nil
	}
	return index.Sync(s.db, s.idx, s.logger)
}

func buildNoteDetail(key string, n *models.Note) *NoteDetail {
	res := parser.Parse(n.Content, n.Tags...)
	return &NoteDetail{
		Key:      key,
		Title:    res.Title,
		Content:  n.Content,
		Checksum: checksum.String(n.Content),
		Tags:     nonNilSlice(res.Tags),
		Synced:   !n.IsNew(),
		Dirty:    n.IsDirty(),
		Syncnum:  n.Syncnum,
		Version:  n.Version,
		Created:  n.CreateDate.Time(),
		Modified: n.ModifyDate.Time(),
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
