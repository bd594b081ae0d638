package notebook

import (
	"context"
	"sync"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/debug"
	"github.com/grothkopp/ainb/pkg/engine"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind starts losing updates rather than slowing
// the engine down.
const subscriberBuffer = 64

// Events fans cell updates out to subscribers and records each update
// on the owning cell in the store. It is the engine's state updater:
// UpdateCellState never blocks, so a slow SSE client cannot stall a
// run's resolution path.
type Events struct {
	store *Store

	mu   sync.Mutex
	subs map[int]chan api.CellUpdate
	next int
}

// Ensure Events implements engine.StateUpdater at compile time.
var _ engine.StateUpdater = (*Events)(nil)

// NewEvents creates an event fan-out recording into the given store.
func NewEvents(store *Store) *Events {
	return &Events{
		store: store,
		subs:  make(map[int]chan api.CellUpdate),
	}
}

// UpdateCellState records the update on the cell and broadcasts it.
// The state is recorded before the broadcast, so a subscriber that
// re-reads the store after an event sees state at least as new as the
// event it received.
func (e *Events) UpdateCellState(_ context.Context, update api.CellUpdate) {
	e.store.recordState(update)

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- update:
		default:
			debug.Trace("notebook", "dropping update for slow subscriber",
				"subscriber", id, "cell", update.CellID, "reason", update.Reason)
		}
	}
}

// Subscribe registers a new subscriber and returns its update channel
// together with a cancel function. The channel is closed when cancel is
// called; cancel is safe to call more than once.
func (e *Events) Subscribe() (<-chan api.CellUpdate, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.next
	e.next++
	ch := make(chan api.CellUpdate, subscriberBuffer)
	e.subs[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (e *Events) SubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
