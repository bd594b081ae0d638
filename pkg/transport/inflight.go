package transport

import (
	"context"
	"sync"

	"github.com/grothkopp/ainb/pkg/api"
)

// InFlightRegistry tracks in-flight prompt invocations for explicit
// cancellation. Code cell runs are stopped through the engine; a prompt
// cell executes as a provider call inside the run handler, so stopping
// one means cancelling that call's context. The registry maps cell IDs
// to cancel functions, at most one live invocation per cell.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[api.CellID]*inflightEntry
}

type inflightEntry struct {
	cancel context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[api.CellID]*inflightEntry),
	}
}

// Register adds an in-flight invocation. If the cell already has one,
// the prior invocation is cancelled and replaced: a newer run for the
// same cell supersedes the older one. The returned function removes
// this registration without cancelling it; it is a no-op once the
// registration has been superseded or cancelled.
func (r *InFlightRegistry) Register(cellID api.CellID, cancel context.CancelFunc) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[cellID]; ok {
		prev.cancel()
	}
	e := &inflightEntry{cancel: cancel}
	r.entries[cellID] = e

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.entries[cellID] == e {
			delete(r.entries, cellID)
		}
	}
}

// Cancel cancels the cell's in-flight invocation. Returns true if one
// was found and cancelled, false if the cell had no live invocation.
func (r *InFlightRegistry) Cancel(cellID api.CellID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cellID]
	if !ok {
		return false
	}
	e.cancel()
	delete(r.entries, cellID)
	return true
}

// CancelAll cancels every in-flight invocation.
func (r *InFlightRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.cancel()
		delete(r.entries, id)
	}
}

// Active reports whether the cell has a live invocation.
func (r *InFlightRegistry) Active(cellID api.CellID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[cellID]
	return ok
}
