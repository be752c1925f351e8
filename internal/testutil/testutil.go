// Package testutil provides shared test helpers for stores, databases and a fake remote.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/notes"
	"github.com/starford/notesync/internal/storage"
)

// TestDB creates a temporary SQLite search mirror that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notesync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary note directory with a storage provider.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestIndex creates a note index over a fresh temporary store.
func TestIndex(t *testing.T, opts ...notes.Option) (*notes.Index, *storage.FS) {
	t.Helper()
	_, store := TestStore(t)
	idx, err := notes.Load(store, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return idx, store
}
