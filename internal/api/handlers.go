package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/noteservice"
	"github.com/starford/notesync/internal/reconcile"
)

const (
	maxBody       = 10 << 20
	mirrorTimeout = 5 * time.Second
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, optionally filtered by a regular expression
//	@Tags			notes
//	@Produce		json
//	@Param			q	query		string	false	"Regular expression matched against content"
//	@Success		200	{object}	NoteListResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListNotes(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid pattern"))
			return
		}
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/{key}.
//
//	@Summary		Get a single note by key
//	@Tags			notes
//	@Produce		json
//	@Param			key	path		string	true	"Note key"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{key} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	note, err := h.svc.GetNote(r.Context(), key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("key", key), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new local note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Title)
	if err != nil {
		slog.Error("create note failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{key}.
//
//	@Summary		Replace the content of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			key			path	string				true	"Note key"
//	@Param			If-Match	header	string				false	"Content checksum for optimistic concurrency"
//	@Param			body		body	UpdateNoteRequest	true	"New content"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{key} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateNoteRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Content == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), key, *req.Content, ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		default:
			slog.Error("update note failed", slog.String("key", key), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// BrowseNotes handles GET /api/browse.
//
//	@Summary		Page through the search mirror
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	BrowseResponse
//	@Security		BearerAuth
//	@Router			/browse [get]
func (h *Handler) BrowseNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.svc.BrowseNotes(r.Context(), limit, offset, q.Get("tag"))
	if err != nil {
		writeServiceError(w, "browse notes", err)
		return
	}
	items := make([]BrowseItem, len(rows))
	for i, row := range rows {
		items[i] = BrowseItem{
			Key:      row.Key,
			Title:    row.Title,
			Tags:     nonNil(row.Tags),
			Synced:   row.Synced,
			Modified: row.ModifiedAt.Time(),
		}
	}
	writeJSON(w, http.StatusOK, BrowseResponse{Notes: items, Total: total})
}

// Tags handles GET /api/tags.
//
//	@Summary		Tag usage counts
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	map[string]int
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		writeServiceError(w, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: nonNil(results)})
}

// Sync handles POST /api/sync.
//
//	@Summary		Run one full sync pass
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		502	{object}	SyncErrorResponse
//	@Failure		500	{object}	SyncErrorResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Sync(r.Context())
	if err == nil {
		writeJSON(w, http.StatusOK, newSyncResponse(sum))
		return
	}
	if errors.Is(err, apperr.ErrUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync is not configured"))
		return
	}

	resp := SyncErrorResponse{Error: err.Error(), Summary: newSyncResponse(sum)}
	var pe *reconcile.PhaseError
	if errors.As(err, &pe) {
		resp.Phase = pe.Phase
		resp.Reconciled = pe.Reconciled
	}
	status := http.StatusInternalServerError
	if apperr.IsRemote(err) {
		status = http.StatusBadGateway
	}
	slog.Error("sync failed", slog.String("phase", resp.Phase), slog.String("error", err.Error()))
	writeJSON(w, status, resp)
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, apperr.ErrUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search mirror is not configured"))
		return
	}
	slog.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
