package index

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/checksum"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/parser"
)

// Source is the read side of the note index that the mirror follows.
type Source interface {
	Keys() []string
	Get(key string) (*models.Note, error)
}

// Sync brings the mirror up to date with src:
//   - new/changed notes are parsed and upserted
//   - notes no longer in src are deleted from the mirror
func Sync(db *DB, src Source, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	live := make(map[string]struct{})
	for _, key := range src.Keys() {
		n, err := src.Get(key)
		if err != nil {
			continue // removed since Keys
		}
		live[key] = struct{}{}
		if checksums[key] == Fingerprint(n) {
			continue
		}
		if err := IndexNote(db, key, n); err != nil {
			logger.Warn("mirror: index failed", slog.String("key", key), slog.String("error", err.Error()))
		} else {
			logger.Debug("mirror: indexed", slog.String("key", key))
		}
	}

	for key := range checksums {
		if _, ok := live[key]; ok {
			continue
		}
		if err := db.DeleteNote(key); err != nil {
			logger.Warn("mirror: delete failed", slog.String("key", key), slog.String("error", err.Error()))
		} else {
			logger.Debug("mirror: removed stale", slog.String("key", key))
		}
	}
	return nil
}

// Apply mirrors one change reported by the note index.
func Apply(db *DB, src Source, key string) error {
	n, err := src.Get(key)
	if errors.Is(err, apperr.ErrNotFound) {
		return db.DeleteNote(key)
	}
	if err != nil {
		return err
	}
	cs, err := db.GetChecksum(key)
	if err != nil {
		return err
	}
	if cs == Fingerprint(n) {
		return nil
	}
	return IndexNote(db, key, n)
}

// IndexNote parses n and upserts it under key.
func IndexNote(db *DB, key string, n *models.Note) error {
	res := parser.Parse(n.Content, n.Tags...)
	return db.UpsertNote(NoteRow{
		Key:        key,
		Title:      res.Title,
		Checksum:   Fingerprint(n),
		Tags:       res.Tags,
		Synced:     !n.IsNew(),
		ModifiedAt: n.ModifyDate,
	}, res.Body)
}

// Fingerprint identifies the mirrored state of a note.
func Fingerprint(n *models.Note) string {
	var b strings.Builder
	b.WriteString(n.Content)
	b.WriteByte(0)
	b.WriteString(strings.Join(n.Tags, ","))
	b.WriteByte(0)
	if !n.IsNew() {
		b.WriteString(n.Key)
	}
	b.WriteByte(0)
	b.WriteString(n.ModifyDate.String())
	return checksum.String(b.String())
}
