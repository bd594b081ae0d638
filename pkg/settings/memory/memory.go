// Package memory provides an in-memory implementation of settings.Store
// for testing and lightweight deployments. Documents are stored in memory
// and lost when the process restarts.
package memory

import (
	"context"
	"sync"

	"github.com/grothkopp/ainb/pkg/settings"
)

// Store is an in-memory settings store keyed by workspace.
type Store struct {
	mu   sync.RWMutex
	docs map[string]settings.Document
}

// Ensure Store implements settings.Store at compile time.
var _ settings.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		docs: make(map[string]settings.Document),
	}
}

// Load returns the document for the workspace in the context. Returns
// settings.ErrNotFound when no document has been saved yet.
func (s *Store) Load(ctx context.Context) (settings.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[settings.GetWorkspace(ctx)]
	if !ok {
		return settings.Document{}, settings.ErrNotFound
	}
	return doc.Clone(), nil
}

// Save stores the document for the workspace in the context, replacing
// any previous document.
func (s *Store) Save(ctx context.Context, doc settings.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[settings.GetWorkspace(ctx)] = doc.Clone()
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
