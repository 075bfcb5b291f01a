package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]any // path -> fields
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]any)}
}

func (s *MemoryStore) Get(ctx context.Context, path string, dest any) error {
	if _, _, err := SplitPath(path); err != nil {
		return err
	}

	s.mu.RLock()
	doc, ok := s.docs[path]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	// JSON round-trip decodes the loosely typed field map into the caller's
	// struct the same way the mongo driver decodes bson.
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (s *MemoryStore) Set(ctx context.Context, path string, fields map[string]any, merge bool) error {
	if _, _, err := SplitPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[path]
	if !ok || !merge {
		doc = make(map[string]any, len(fields))
		s.docs[path] = doc
	}
	maps.Copy(doc, fields)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if _, _, err := SplitPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.docs, path)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, filter map[string]any) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	prefix := collection + "/"
	for path, doc := range s.docs {
		if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
			continue
		}
		matched := true
		for k, v := range filter {
			if doc[k] != v {
				matched = false
				break
			}
		}
		if matched {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) List(ctx context.Context, collection, orderByDesc string, limit int) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := collection + "/"
	var docs []map[string]any
	for path, doc := range s.docs {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			docs = append(docs, maps.Clone(doc))
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		return fmt.Sprint(docs[i][orderByDesc]) > fmt.Sprint(docs[j][orderByDesc])
	})

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Exists reports whether a document exists at path. Test helper.
func (s *MemoryStore) Exists(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[path]
	return ok
}
