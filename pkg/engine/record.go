package engine

import (
	"time"

	"github.com/grothkopp/ainb/pkg/api"
)

// cellRecord is the engine's per-cell bookkeeping: the generation
// counter, the debounce timer, the pending run, the running flag and
// timing. Records are created lazily and mutated only under the engine
// mutex; the generation counter is never reset, only incremented, so
// it stays strictly monotonic across stop and rerun cycles.
type cellRecord struct {
	generation uint64
	timer      *time.Timer
	watchdog   *time.Timer
	pending    *pendingRun
	running    bool
	startedAt  time.Time

	// subscribedTo is the handle ID whose receive channel is currently
	// being drained by a reader goroutine. Cleared when the handle is
	// destroyed so a replacement handle gets its own reader.
	subscribedTo string
}

// pendingRun is the unresolved future for one dispatched generation.
// The outcome channel is buffered, written at most once, then closed;
// a channel that closes without a value means there was nothing to run.
type pendingRun struct {
	generation uint64
	outcome    chan api.RunOutcome
	resolved   bool
}

func newPendingRun(generation uint64) *pendingRun {
	return &pendingRun{
		generation: generation,
		outcome:    make(chan api.RunOutcome, 1),
	}
}

// resolve delivers the outcome and closes the future. Callers hold the
// engine mutex; a future resolves at most once.
func (p *pendingRun) resolve(outcome api.RunOutcome) {
	if p == nil || p.resolved {
		return
	}
	p.resolved = true
	p.outcome <- outcome
	close(p.outcome)
}

// closedOutcome returns an already-closed future that yields no value.
func closedOutcome() <-chan api.RunOutcome {
	ch := make(chan api.RunOutcome)
	close(ch)
	return ch
}

// stopTimer cancels a pending debounce timer, if any. Engine mutex held.
func (r *cellRecord) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// stopWatchdog cancels a pending run-timeout timer, if any. Engine
// mutex held.
func (r *cellRecord) stopWatchdog() {
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
}

// elapsedMs reports milliseconds since the current run started.
func (r *cellRecord) elapsedMs() int64 {
	if r.startedAt.IsZero() {
		return 0
	}
	return time.Since(r.startedAt).Milliseconds()
}
