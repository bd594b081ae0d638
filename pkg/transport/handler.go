package transport

import (
	"time"

	"github.com/grothkopp/ainb/pkg/api"
)

// Runner is the cell execution surface the transport layer drives.
// pkg/engine implements it; tests substitute fakes.
//
// RunNow returns a future that resolves with exactly one outcome. Stop
// and StopAll resolve any pending future with a stopped outcome; both
// are safe to call for cells that are not running.
type Runner interface {
	// RunNow starts a run immediately and returns its outcome future.
	// For unknown or non-code cells the future is already closed.
	RunNow(cellID api.CellID) <-chan api.RunOutcome

	// ScheduleRun requests a debounced run. Calls within the delay
	// window coalesce into a single dispatch.
	ScheduleRun(cellID api.CellID, delay time.Duration)

	// Stop stops the cell's pending or scheduled run, if any.
	Stop(cellID api.CellID)

	// StopAll stops every tracked cell.
	StopAll()

	// IsRunning reports whether the cell has an unresolved run.
	IsRunning(cellID api.CellID) bool

	// Generation returns the cell's current execution generation.
	Generation(cellID api.CellID) uint64
}

// Expander rewrites cell references in prompt source text before the
// prompt is sent to a provider. The cells slice is the notebook snapshot
// referenced values are read from.
type Expander interface {
	ExpandTemplate(source string, cells []api.Cell) (string, error)
}
