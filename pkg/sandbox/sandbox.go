// Package sandbox manages the isolated execution contexts that run
// notebook cell code. Every executable cell gets its own context with a
// private bidirectional message channel, and a Pool keeps at most one
// live context per cell. Contexts are either local runner subprocesses
// or cluster sandboxes provisioned on demand.
package sandbox

import (
	"context"

	"github.com/grothkopp/ainb/pkg/api"
)

// Conn is the message channel between the engine and one execution
// context. Implementations stamp the context's origin token on outgoing
// messages and silently drop incoming messages whose token does not
// match, so a replaced context can never deliver into its successor.
type Conn interface {
	// Send delivers one message into the context. It returns quickly;
	// evaluation results arrive asynchronously on Recv.
	Send(ctx context.Context, msg Message) error
	// Recv returns the stream of messages leaving the context. The
	// channel closes when the context dies or is closed.
	Recv() <-chan Message
	// Close tears the context down. Safe to call more than once.
	Close() error
}

// Handle is one live execution context bound to a cell. The ID doubles
// as the context's origin token.
type Handle struct {
	ID     string
	CellID api.CellID
	Conn   Conn
}

// Close releases the context behind the handle.
func (h *Handle) Close() error {
	if h == nil || h.Conn == nil {
		return nil
	}
	return h.Conn.Close()
}

// Launcher provisions execution contexts.
type Launcher interface {
	// Launch creates a fresh context for the given cell. The context
	// argument bounds the lifetime of the launched sandbox, not just
	// the launch call, so callers pass a lifecycle context rather than
	// a request-scoped one.
	Launch(ctx context.Context, cellID api.CellID) (*Handle, error)
}
