// Package apperr holds the sentinel errors shared across notesync packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrUnavailable means the feature is not configured in this process.
	ErrUnavailable = errors.New("unavailable")

	// ErrStorageIO marks a local disk read/write/permission failure.
	ErrStorageIO = errors.New("storage i/o")

	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrRemoteAuth        = errors.New("remote authentication failed")
	// ErrRemoteConflict is returned when the server rejects an update.
	ErrRemoteConflict = errors.New("remote rejected update")
)

// IsRemote reports whether err originates from the remote note service.
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable) ||
		errors.Is(err, ErrRemoteAuth) ||
		errors.Is(err, ErrRemoteConflict)
}
