// Package docstore provides path-addressed JSON document storage with
// merge-patch write semantics.
//
// A path has the form "<collection>/<id>". Merge writes update only the
// provided fields and never clobber the rest of the document, which is what
// allows the entitlement verifier and the webhook processor to write to the
// same document concurrently without coordination. No cross-document
// transactions are assumed.
package docstore

import (
	"context"
	"fmt"
	"strings"
)

// Store is the document store contract consumed by the services.
type Store interface {
	// Get decodes the document at path into dest. Returns ErrNotFound if the
	// document does not exist.
	Get(ctx context.Context, path string, dest any) error

	// Set writes fields to the document at path, creating it if absent.
	// With merge=true only the provided fields are touched (merge-patch);
	// with merge=false the document is replaced.
	Set(ctx context.Context, path string, fields map[string]any, merge bool) error

	// Delete removes the document at path. Deleting a missing document is
	// not an error.
	Delete(ctx context.Context, path string) error

	// Count returns the number of documents in a collection matching the
	// filter. A nil filter counts all documents.
	Count(ctx context.Context, collection string, filter map[string]any) (int64, error)

	// List returns up to limit documents from a collection ordered by the
	// given field, newest first. Intended for operator views, not hot paths.
	List(ctx context.Context, collection, orderByDesc string, limit int) ([]map[string]any, error)
}

// SplitPath splits a document path into collection and document id.
func SplitPath(path string) (collection, id string, err error) {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 || idx == len(path)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return path[:idx], path[idx+1:], nil
}
