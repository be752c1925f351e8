package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/notesync/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Key        string
	Title      string
	Checksum   string
	Tags       []string
	Synced     bool // has a server key
	ModifiedAt models.Timestamp
}

// SearchResult represents one search hit.
type SearchResult struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// UpsertNote inserts or replaces a note, its tags and its FTS entry in one transaction.
func (db *DB) UpsertNote(n NoteRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if n.Tags == nil {
		n.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(n.Tags)

	_, err = tx.Exec(`
		INSERT INTO notes (key, title, checksum, tags, body, synced, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			title       = excluded.title,
			checksum    = excluded.checksum,
			tags        = excluded.tags,
			body        = excluded.body,
			synced      = excluded.synced,
			modified_at = excluded.modified_at
	`, n.Key, n.Title, n.Checksum, string(tagsJSON), body, n.Synced, float64(n.ModifiedAt))
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if err := ftsUpsert(tx, n.Key, n.Title, body, n.Tags); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM note_tags WHERE key = ?`, n.Key); err != nil {
		return fmt.Errorf("index: clear tags: %w", err)
	}
	if len(n.Tags) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO note_tags (key, tag) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare tag insert: %w", err)
		}
		defer stmt.Close()
		for _, tag := range n.Tags {
			if _, err := stmt.Exec(n.Key, tag); err != nil {
				return fmt.Errorf("index: insert tag: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note, its tags and its FTS entry.
func (db *DB) DeleteNote(key string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, key)
	_, _ = tx.Exec(`DELETE FROM note_tags WHERE key = ?`, key)
	if _, err := tx.Exec(`DELETE FROM notes WHERE key = ?`, key); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or "" if it is not mirrored.
func (db *DB) GetChecksum(key string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE key = ?`, key).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns key -> checksum for every mirrored note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT key, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, cs string
		if err := rows.Scan(&k, &cs); err != nil {
			return nil, err
		}
		out[k] = cs
	}
	return out, rows.Err()
}

// ListNotes returns a page of notes, newest first, optionally filtered by tag,
// together with the total number of matching notes.
func (db *DB) ListNotes(limit, offset int, tag string) ([]NoteRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := ""
	args := []any{}
	if tag != "" {
		where = `WHERE key IN (SELECT key FROM note_tags WHERE tag = ?)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT key, title, checksum, tags, synced, modified_at
		FROM notes `+where+`
		ORDER BY modified_at DESC, key ASC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		var r NoteRow
		var tags string
		var mod float64
		if err := rows.Scan(&r.Key, &r.Title, &r.Checksum, &tags, &r.Synced, &mod); err != nil {
			return nil, 0, err
		}
		_ = json.Unmarshal([]byte(tags), &r.Tags)
		r.ModifiedAt = models.Timestamp(mod)
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Tags returns every tag with the number of notes carrying it.
func (db *DB) Tags() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT tag, count(*) FROM note_tags GROUP BY tag`)
	if err != nil {
		return nil, fmt.Errorf("index: tags: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var tag string
		var n int
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, err
		}
		out[tag] = n
	}
	return out, rows.Err()
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Key, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		r.Snippet = strings.TrimSpace(r.Snippet)
		out = append(out, r)
	}
	return out, rows.Err()
}
