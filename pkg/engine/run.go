package engine

import (
	"fmt"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/debug"
	"github.com/grothkopp/ainb/pkg/observability"
	"github.com/grothkopp/ainb/pkg/sandbox"
)

// ScheduleRun (re)starts the cell's debounce timer; bursts of calls
// within the window coalesce so only the last one results in a
// dispatched run. A non-positive delay uses the configured default.
func (e *Engine) ScheduleRun(cellID api.CellID, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if delay <= 0 {
		delay = e.cfg.debounce()
	}
	rec := e.record(cellID)
	if rec.timer != nil {
		rec.timer.Stop()
		observability.DebounceCoalescedTotal.Inc()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		e.mu.Lock()
		// A timer that lost the race against its own replacement must
		// not fire a run.
		live := rec.timer == t
		if live {
			rec.timer = nil
		}
		e.mu.Unlock()
		if live {
			e.RunNow(cellID)
		}
	})
	rec.timer = t
}

// RunNow cancels any pending debounce timer and dispatches the cell to
// its execution context. The returned future resolves exactly once,
// when a reply for this generation arrives or when the run is stopped,
// superseded, or fails to dispatch; it never errors to the caller. For
// a missing or non-code cell the future closes immediately without a
// value.
//
// At most one future per cell is unresolved at a time: a newer RunNow
// resolves the prior future with a stopped outcome.
func (e *Engine) RunNow(cellID api.CellID) <-chan api.RunOutcome {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return closedOutcome()
	}
	rec := e.record(cellID)
	rec.stopTimer()
	e.mu.Unlock()

	cell, ok := e.cells.Cell(cellID)
	if !ok || cell.Kind != api.CellKindCode {
		return closedOutcome()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return closedOutcome()
	}
	var superseded api.RunOutcome
	hadPrior := false
	if prev := rec.pending; prev != nil && !prev.resolved {
		superseded = api.RunOutcome{
			CellID:     cellID,
			Generation: prev.generation,
			Status:     api.RunStatusStopped,
			DurationMs: rec.elapsedMs(),
		}
		prev.resolve(superseded)
		rec.pending = nil
		hadPrior = true
	}
	rec.stopWatchdog()
	rec.generation++
	pr := newPendingRun(rec.generation)
	rec.pending = pr
	rec.running = true
	rec.startedAt = time.Now()
	e.mu.Unlock()

	if hadPrior {
		e.reportOutcome(superseded)
	}
	observability.RunsStartedTotal.Inc()
	e.updater.UpdateCellState(e.ctx, api.CellUpdate{
		CellID: cellID,
		Reason: api.UpdateReasonRunning,
	})

	go e.dispatch(cell, pr)
	return pr.outcome
}

// dispatch expands the cell source, ensures the execution context and
// sends the job request. Any failure resolves the future with an error
// outcome; callers of RunNow never see a fault.
func (e *Engine) dispatch(cell api.Cell, pr *pendingRun) {
	source := cell.Source
	if e.expander != nil {
		expanded, err := e.expander.ExpandTemplate(cell.Source, e.cells.Snapshot())
		if err != nil {
			e.failRun(cell.ID, pr, fmt.Sprintf("template expansion failed: %v", err))
			return
		}
		source = expanded
	}

	h, err := e.pool.Ensure(e.ctx, cell.ID)
	if err != nil {
		e.failRun(cell.ID, pr, err.Error())
		return
	}
	e.subscribe(h)

	// The run may have been stopped or superseded while the context was
	// launching; don't send a request nobody waits for.
	e.mu.Lock()
	gone := pr.resolved
	e.mu.Unlock()
	if gone {
		return
	}

	req := sandbox.NewJobRequest(cell.ID, pr.generation, source)
	if e.cfg.RunTimeout > 0 {
		req.TimeoutMs = e.cfg.RunTimeout.Milliseconds()
	}
	if err := h.Conn.Send(e.ctx, req); err != nil {
		e.failRun(cell.ID, pr, err.Error())
		return
	}
	debug.Log("engine", "dispatched run", "cell_id", cell.ID, "generation", pr.generation)
	e.armWatchdog(cell.ID, pr)
}

// subscribe starts one reader goroutine per handle, draining replies
// into onReply until the context dies or is destroyed.
func (e *Engine) subscribe(h *sandbox.Handle) {
	e.mu.Lock()
	rec := e.record(h.CellID)
	if rec.subscribedTo == h.ID {
		e.mu.Unlock()
		return
	}
	rec.subscribedTo = h.ID
	e.mu.Unlock()

	go func() {
		for msg := range h.Conn.Recv() {
			e.onReply(msg)
		}
		e.contextGone(h)
	}()
}

// onReply is the single funnel for messages leaving execution contexts.
// Replies are accepted strictly by generation equality; anything else
// is discarded without side effects.
func (e *Engine) onReply(msg sandbox.Message) {
	if msg.Kind != sandbox.KindJobResult && msg.Kind != sandbox.KindJobError {
		return
	}
	e.mu.Lock()
	rec, ok := e.records[msg.CellID]
	if !ok {
		e.mu.Unlock()
		debug.Trace("engine", "discarding reply for untracked cell", "cell_id", msg.CellID)
		return
	}
	if msg.Generation != rec.generation || rec.pending == nil || rec.pending.resolved {
		e.mu.Unlock()
		observability.StaleRepliesTotal.Inc()
		debug.Trace("engine", "discarding stale reply",
			"cell_id", msg.CellID, "got", msg.Generation, "want", rec.generation)
		return
	}
	outcome := api.RunOutcome{
		CellID:     msg.CellID,
		Generation: msg.Generation,
		Status:     api.RunStatusOK,
		Value:      msg.Value,
		DurationMs: rec.elapsedMs(),
	}
	if msg.Kind == sandbox.KindJobError {
		outcome.Status = api.RunStatusError
		outcome.Value = ""
		outcome.ErrorMessage = msg.ErrorMessage
	}
	rec.pending.resolve(outcome)
	rec.pending = nil
	rec.running = false
	rec.stopWatchdog()
	e.mu.Unlock()

	e.reportOutcome(outcome)
}

// contextGone runs when a context's receive channel closes. A handle
// that died underneath an unresolved run resolves that run with an
// error; a handle torn down deliberately was already cleaned up.
func (e *Engine) contextGone(h *sandbox.Handle) {
	e.mu.Lock()
	rec, ok := e.records[h.CellID]
	if !ok || rec.subscribedTo != h.ID {
		e.mu.Unlock()
		return
	}
	rec.subscribedTo = ""
	var outcome api.RunOutcome
	notify := false
	if pr := rec.pending; pr != nil && !pr.resolved {
		outcome = api.RunOutcome{
			CellID:       h.CellID,
			Generation:   pr.generation,
			Status:       api.RunStatusError,
			ErrorMessage: "execution context terminated unexpectedly",
			DurationMs:   rec.elapsedMs(),
		}
		pr.resolve(outcome)
		rec.pending = nil
		notify = true
	}
	rec.running = false
	rec.stopWatchdog()
	e.mu.Unlock()

	e.pool.Destroy(h.CellID)
	if notify {
		e.reportOutcome(outcome)
	}
}

// failRun resolves a still-pending run with an error outcome. No-op if
// the run was already resolved by a reply, stop or supersede.
func (e *Engine) failRun(cellID api.CellID, pr *pendingRun, msg string) {
	e.mu.Lock()
	rec, ok := e.records[cellID]
	if !ok || rec.pending != pr || pr.resolved {
		e.mu.Unlock()
		return
	}
	outcome := api.RunOutcome{
		CellID:       cellID,
		Generation:   pr.generation,
		Status:       api.RunStatusError,
		ErrorMessage: msg,
		DurationMs:   rec.elapsedMs(),
	}
	pr.resolve(outcome)
	rec.pending = nil
	rec.running = false
	rec.stopWatchdog()
	e.mu.Unlock()
	e.reportOutcome(outcome)
}

// armWatchdog starts the optional run-timeout timer for a dispatched run.
func (e *Engine) armWatchdog(cellID api.CellID, pr *pendingRun) {
	if e.cfg.RunTimeout <= 0 {
		return
	}
	e.mu.Lock()
	rec, ok := e.records[cellID]
	if !ok || rec.pending != pr || pr.resolved {
		e.mu.Unlock()
		return
	}
	rec.stopWatchdog()
	rec.watchdog = time.AfterFunc(e.cfg.RunTimeout, func() {
		e.timeoutRun(cellID, pr)
	})
	e.mu.Unlock()
}

// timeoutRun behaves like Stop for one overdue run, but the future
// resolves with an error outcome instead of stopped.
func (e *Engine) timeoutRun(cellID api.CellID, pr *pendingRun) {
	e.mu.Lock()
	rec, ok := e.records[cellID]
	if !ok || rec.pending != pr || pr.resolved {
		e.mu.Unlock()
		return
	}
	outcome := api.RunOutcome{
		CellID:       cellID,
		Generation:   pr.generation,
		Status:       api.RunStatusError,
		ErrorMessage: fmt.Sprintf("run exceeded %s and was stopped", e.cfg.RunTimeout),
		DurationMs:   rec.elapsedMs(),
	}
	pr.resolve(outcome)
	rec.pending = nil
	rec.running = false
	rec.subscribedTo = ""
	rec.stopWatchdog()
	e.mu.Unlock()

	e.pool.Destroy(cellID)
	e.reportOutcome(outcome)
}

// reportOutcome records run metrics and notifies the notebook layer.
func (e *Engine) reportOutcome(outcome api.RunOutcome) {
	observability.RunsCompletedTotal.WithLabelValues(string(outcome.Status)).Inc()
	observability.RunDuration.Observe(float64(outcome.DurationMs) / 1000)

	update := api.CellUpdate{
		CellID:     outcome.CellID,
		DurationMs: outcome.DurationMs,
	}
	switch outcome.Status {
	case api.RunStatusOK:
		update.Reason = api.UpdateReasonResult
		update.Output = outcome.Value
	case api.RunStatusError:
		update.Reason = api.UpdateReasonError
		update.ErrorMessage = outcome.ErrorMessage
	case api.RunStatusStopped:
		update.Reason = api.UpdateReasonStopped
	}
	e.updater.UpdateCellState(e.ctx, update)
}
