package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/sandbox"
)

// CellProvider looks up cells in the active notebook. The engine never
// creates or deletes cells; it only reacts to run requests by id.
type CellProvider interface {
	// Cell returns the cell with the given id.
	Cell(id api.CellID) (api.Cell, bool)
	// Snapshot returns all cells, for template expansion.
	Snapshot() []api.Cell
}

// StateUpdater receives cell state changes: run started, result, error,
// stopped. Implementations must not block.
type StateUpdater interface {
	UpdateCellState(ctx context.Context, update api.CellUpdate)
}

// Expander expands template references in cell source before dispatch.
type Expander interface {
	ExpandTemplate(source string, cells []api.Cell) (string, error)
}

// Engine coordinates cell runs against isolated execution contexts. All
// per-cell bookkeeping lives in one mutex-owned record table; nothing
// outside the engine mutates generations, timers, futures or the
// running set.
type Engine struct {
	cells    CellProvider
	updater  StateUpdater
	expander Expander
	pool     *sandbox.Pool
	cfg      Config

	// ctx bounds the lifetime of launched contexts; cancelled on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	records map[api.CellID]*cellRecord
	closed  bool
}

// New creates an Engine. Cells, updater and pool must not be nil; a nil
// expander disables template expansion.
func New(cells CellProvider, updater StateUpdater, expander Expander, pool *sandbox.Pool, cfg Config) (*Engine, error) {
	if cells == nil {
		return nil, fmt.Errorf("engine: cell provider must not be nil")
	}
	if updater == nil {
		return nil, fmt.Errorf("engine: state updater must not be nil")
	}
	if pool == nil {
		return nil, fmt.Errorf("engine: pool must not be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cells:    cells,
		updater:  updater,
		expander: expander,
		pool:     pool,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		records:  make(map[api.CellID]*cellRecord),
	}, nil
}

// record returns the cell's record, creating it lazily. Mutex held.
func (e *Engine) record(cellID api.CellID) *cellRecord {
	rec, ok := e.records[cellID]
	if !ok {
		rec = &cellRecord{}
		e.records[cellID] = rec
	}
	return rec
}

// IsRunning reports whether the cell has a dispatched, unresolved run.
func (e *Engine) IsRunning(cellID api.CellID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[cellID]
	return ok && rec.running
}

// Generation reports the cell's current execution generation. Zero
// means the cell has never been dispatched.
func (e *Engine) Generation(cellID api.CellID) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[cellID]
	if !ok {
		return 0
	}
	return rec.generation
}

// Stop ends the cell's run destructively: the debounce timer is
// cancelled, the execution context is destroyed (in-flight work is
// discarded and can never deliver a late reply), and any pending future
// resolves with a stopped outcome. The generation counter is preserved.
func (e *Engine) Stop(cellID api.CellID) {
	e.mu.Lock()
	rec, ok := e.records[cellID]
	if !ok {
		e.mu.Unlock()
		return
	}
	rec.stopTimer()
	rec.stopWatchdog()
	var outcome api.RunOutcome
	notify := false
	if pr := rec.pending; pr != nil && !pr.resolved {
		outcome = api.RunOutcome{
			CellID:     cellID,
			Generation: pr.generation,
			Status:     api.RunStatusStopped,
			DurationMs: rec.elapsedMs(),
		}
		pr.resolve(outcome)
		rec.pending = nil
		notify = true
	}
	rec.running = false
	rec.subscribedTo = ""
	e.mu.Unlock()

	e.pool.Destroy(cellID)
	if notify {
		e.reportOutcome(outcome)
	}
}

// StopAll stops every tracked cell; used on notebook switch and teardown.
func (e *Engine) StopAll() {
	e.mu.Lock()
	ids := make([]api.CellID, 0, len(e.records))
	for id := range e.records {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.Stop(id)
	}
}

// Close stops all runs, tears down every execution context and cancels
// the lifecycle context. The engine is unusable afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.StopAll()
	e.pool.DestroyAll()
	e.cancel()
}
