package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
)

const (
	// Ext is the extension of every note file.
	Ext = ".json"

	tmpPrefix = ".notesync-tmp-"
)

// FS implements Provider backed by a directory of <key>.json files.
type FS struct {
	root string // absolute path to the store directory
}

// NewFS creates a new FS provider rooted at dir, creating it if absent.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve root: %w", apperr.ErrStorageIO, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create root: %w", apperr.ErrStorageIO, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: stat root: %w", apperr.ErrStorageIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: root is not a directory: %s", apperr.ErrStorageIO, abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string {
	return f.root
}

// ValidKey reports whether key can be used as a filename stem inside the store.
func ValidKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("storage: invalid key %q", key)
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("storage: key must not start with a dot: %q", key)
	case strings.ContainsAny(key, `/\`+string(os.PathSeparator)):
		return fmt.Errorf("storage: key must not contain path separators: %q", key)
	}
	return nil
}

// KeyFromPath returns the note key for a store filename, or false if the
// file is not a note file.
func KeyFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, Ext) || strings.HasPrefix(name, ".") {
		return "", false
	}
	key := strings.TrimSuffix(name, Ext)
	if ValidKey(key) != nil {
		return "", false
	}
	return key, true
}

// Path returns the filename for key.
func (f *FS) Path(key string) string {
	return filepath.Join(f.root, key+Ext)
}

func (f *FS) safePath(key string) (string, error) {
	if err := ValidKey(key); err != nil {
		return "", err
	}
	return f.Path(key), nil
}

// LoadAll reads every <key>.json file in the store directory.
func (f *FS) LoadAll() (map[string]*models.Note, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", apperr.ErrStorageIO, err)
	}
	out := make(map[string]*models.Note, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := KeyFromPath(e.Name())
		if !ok {
			continue
		}
		n, err := f.Load(key)
		if err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, nil
}

// Load reads and decodes one note file.
func (f *FS) Load(key string) (*models.Note, error) {
	abs, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage: load %s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: read %s: %w", apperr.ErrStorageIO, key, err)
	}
	var n models.Note
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", apperr.ErrStorageIO, key, err)
	}
	return &n, nil
}

// Save atomically writes the note: tmp file → fsync → rename.
func (f *FS) Save(key string, note *models.Note) error {
	abs, err := f.safePath(key)
	if err != nil {
		return err
	}
	content, err := json.MarshalIndent(note, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(f.root, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", apperr.ErrStorageIO, err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(append(content, '\n')); err != nil {
		return fmt.Errorf("%w: write temp: %w", apperr.ErrStorageIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %w", apperr.ErrStorageIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp: %w", apperr.ErrStorageIO, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("%w: rename: %w", apperr.ErrStorageIO, err)
	}
	success = true
	return nil
}

// Delete removes a note file. Deleting a missing note succeeds.
func (f *FS) Delete(key string) error {
	abs, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %w", apperr.ErrStorageIO, key, err)
	}
	return nil
}
