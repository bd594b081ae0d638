package sandbox

import (
	"context"
	"log/slog"
	"sync"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/observability"
)

// Pool keeps at most one live execution context per cell. Concurrent
// launches for the same cell are collapsed so callers share one context.
type Pool struct {
	launcher Launcher

	mu       sync.Mutex
	handles  map[api.CellID]*Handle
	inflight map[api.CellID]*launch
}

type launch struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// NewPool builds an empty pool that provisions via launcher.
func NewPool(launcher Launcher) *Pool {
	return &Pool{
		launcher: launcher,
		handles:  make(map[api.CellID]*Handle),
		inflight: make(map[api.CellID]*launch),
	}
}

// Ensure returns the cell's live context, launching one if none exists.
// While a launch is in flight every other Ensure for the same cell waits
// for it instead of launching a second context.
func (p *Pool) Ensure(ctx context.Context, cellID api.CellID) (*Handle, error) {
	p.mu.Lock()
	if h, ok := p.handles[cellID]; ok {
		p.mu.Unlock()
		return h, nil
	}
	if l, ok := p.inflight[cellID]; ok {
		p.mu.Unlock()
		select {
		case <-l.done:
			return l.handle, l.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l := &launch{done: make(chan struct{})}
	p.inflight[cellID] = l
	p.mu.Unlock()

	// Launching happens outside the lock so other cells are not held up.
	h, err := p.launcher.Launch(ctx, cellID)

	p.mu.Lock()
	delete(p.inflight, cellID)
	if err == nil {
		p.handles[cellID] = h
	}
	p.mu.Unlock()

	if err == nil {
		observability.SandboxLaunchesTotal.Inc()
		observability.SandboxesActive.Inc()
	}
	l.handle, l.err = h, err
	close(l.done)
	return h, err
}

// Get returns the cell's live context without launching one.
func (p *Pool) Get(cellID api.CellID) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[cellID]
	return h, ok
}

// Destroy tears down the cell's context. Destroying a cell with no
// context is a no-op, so repeated calls are safe.
func (p *Pool) Destroy(cellID api.CellID) {
	p.mu.Lock()
	h, ok := p.handles[cellID]
	delete(p.handles, cellID)
	p.mu.Unlock()
	if !ok {
		return
	}
	if err := h.Close(); err != nil {
		slog.Warn("closing execution context failed", "cell_id", cellID, "error", err)
	}
	observability.SandboxDestroysTotal.Inc()
	observability.SandboxesActive.Dec()
}

// DestroyAll tears down every live context.
func (p *Pool) DestroyAll() {
	p.mu.Lock()
	handles := p.handles
	p.handles = make(map[api.CellID]*Handle)
	p.mu.Unlock()
	for id, h := range handles {
		if err := h.Close(); err != nil {
			slog.Warn("closing execution context failed", "cell_id", id, "error", err)
		}
		observability.SandboxDestroysTotal.Inc()
		observability.SandboxesActive.Dec()
	}
}

// Size reports how many contexts are live.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
