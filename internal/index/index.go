package index

// NoteIndex is the search mirror as seen by the service layer.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string) error
	DeleteNote(key string) error
	GetChecksum(key string) (string, error)
	AllChecksums() (map[string]string, error)
	ListNotes(limit, offset int, tag string) ([]NoteRow, int, error)
	Tags() (map[string]int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
