package notebook

import (
	"fmt"
	"sync"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/engine"
)

// CellState is the last recorded lifecycle state of a cell. It is nil
// on cells that have never run.
type CellState struct {
	// Reason is the most recent lifecycle transition (running, result,
	// error, stopped).
	Reason       api.UpdateReason `json:"reason"`
	Output       string           `json:"output,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	DurationMs   int64            `json:"duration_ms,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// CellView is a cell together with its recorded state, as served on the
// HTTP surface.
type CellView struct {
	api.Cell
	State *CellState `json:"state,omitempty"`
}

// entry pairs a cell with its mutable state.
type entry struct {
	cell  api.Cell
	state *CellState
}

// Store is the mutex-guarded cell table backing one notebook document.
// Cells keep their insertion order, so Snapshot and List return them in
// document order. All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	cells map[api.CellID]*entry
	order []api.CellID
}

// Ensure Store implements engine.CellProvider at compile time.
var _ engine.CellProvider = (*Store)(nil)

// NewStore creates a store seeded with the given cells in order.
// Seeding stops at the first invalid cell.
func NewStore(cells ...api.Cell) (*Store, error) {
	s := &Store{cells: make(map[api.CellID]*entry)}
	for _, c := range cells {
		if err := s.Put(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put inserts or replaces a cell. A new cell is appended at the end of
// the document; an existing cell keeps its position and its recorded
// state (staleness of that state is the dependency graph's concern,
// outside this core).
func (s *Store) Put(cell api.Cell) error {
	if cell.ID == "" {
		return api.NewInvalidRequestError("id", "cell id must not be empty")
	}
	switch cell.Kind {
	case api.CellKindCode, api.CellKindPrompt, api.CellKindMarkdown, api.CellKindData:
	default:
		return api.NewInvalidRequestError("kind", fmt.Sprintf("unknown cell kind %q", cell.Kind))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cells[cell.ID]; ok {
		e.cell = cell
		return nil
	}
	s.cells[cell.ID] = &entry{cell: cell}
	s.order = append(s.order, cell.ID)
	return nil
}

// Cell returns the cell with the given id.
func (s *Store) Cell(id api.CellID) (api.Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.cells[id]
	if !ok {
		return api.Cell{}, false
	}
	return e.cell, true
}

// Delete removes a cell and its recorded state. It reports whether the
// cell existed.
func (s *Store) Delete(id api.CellID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cells[id]; !ok {
		return false
	}
	delete(s.cells, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Snapshot returns all cells in document order.
func (s *Store) Snapshot() []api.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.Cell, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.cells[id].cell)
	}
	return out
}

// View returns one cell with its recorded state. The state is a copy;
// callers cannot mutate the store through it.
func (s *Store) View(id api.CellID) (CellView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.cells[id]
	if !ok {
		return CellView{}, false
	}
	v := CellView{Cell: e.cell}
	if e.state != nil {
		st := *e.state
		v.State = &st
	}
	return v, true
}

// List returns all cells with their recorded state in document order.
func (s *Store) List() []CellView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CellView, 0, len(s.order))
	for _, id := range s.order {
		e := s.cells[id]
		v := CellView{Cell: e.cell}
		if e.state != nil {
			st := *e.state
			v.State = &st
		}
		out = append(out, v)
	}
	return out
}

// Len returns the number of cells in the document.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// recordState stores an update as the cell's current state. Updates for
// cells that have been deleted in the meantime are dropped.
func (s *Store) recordState(update api.CellUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cells[update.CellID]
	if !ok {
		return
	}
	e.state = &CellState{
		Reason:       update.Reason,
		Output:       update.Output,
		ErrorMessage: update.ErrorMessage,
		DurationMs:   update.DurationMs,
		UpdatedAt:    time.Now(),
	}
}
