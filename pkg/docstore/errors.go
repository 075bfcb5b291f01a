package docstore

import "errors"

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrInvalidPath indicates a malformed document path.
	ErrInvalidPath = errors.New("docstore: invalid document path")
)
