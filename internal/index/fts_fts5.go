//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			key UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, key, title, body string, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("index: clear fts row: %w", err)
	}
	_, err := tx.Exec(`INSERT INTO notes_fts (key, title, body, tags) VALUES (?, ?, ?, ?)`,
		key, title, body, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, key string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE key = ?`, key)
}

// matchExpr turns free text into an FTS5 expression: every term quoted and
// prefix-matched, all terms required. User input never reaches the FTS5
// query syntax unescaped.
func matchExpr(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	expr := matchExpr(query)
	if expr == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT f.key,
		       f.title,
		       snippet(notes_fts, 2, '<b>', '</b>', '...', 32)
		FROM notes_fts f
		JOIN notes n ON n.key = f.key
		WHERE notes_fts MATCH ?
		ORDER BY bm25(notes_fts, 0, 5.0, 1.0, 2.0), n.modified_at DESC
		LIMIT ?
	`, expr, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
