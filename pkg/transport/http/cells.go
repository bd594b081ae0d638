package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/observability"
	"github.com/grothkopp/ainb/pkg/provider"
	"github.com/grothkopp/ainb/pkg/transport"
)

// handleListCells handles GET /v1/cells.
func (s *Server) handleListCells(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Object: "list", Data: s.deps.Cells.List()})
}

// handlePutCell handles PUT /v1/cells/{id}. The path id is
// authoritative; a body id may be omitted but must not disagree.
func (s *Server) handlePutCell(w http.ResponseWriter, r *http.Request) {
	id := api.CellID(r.PathValue("id"))

	var cell api.Cell
	if !s.readJSON(w, r, &cell) {
		return
	}
	if cell.ID != "" && cell.ID != id {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "body cell id does not match path"),
			http.StatusBadRequest,
		)
		return
	}
	cell.ID = id

	if err := s.deps.Cells.Put(cell); err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cell)
}

// handleGetCell handles GET /v1/cells/{id}.
func (s *Server) handleGetCell(w http.ResponseWriter, r *http.Request) {
	id := api.CellID(r.PathValue("id"))
	view, ok := s.deps.Cells.View(id)
	if !ok {
		writeCellNotFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDeleteCell handles DELETE /v1/cells/{id}. Anything the cell
// still has pending is stopped before removal.
func (s *Server) handleDeleteCell(w http.ResponseWriter, r *http.Request) {
	id := api.CellID(r.PathValue("id"))

	s.deps.Runner.Stop(id)
	s.inflight.Cancel(id)

	if !s.deps.Cells.Delete(id) {
		writeCellNotFound(w, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunCell handles POST /v1/cells/{id}/run. Code cells dispatch to
// the execution engine and block on the outcome; prompt cells invoke
// their resolved model in the handler. Markdown and data cells are
// rendered, never run, so the call is a no-op.
func (s *Server) handleRunCell(w http.ResponseWriter, r *http.Request) {
	id := api.CellID(r.PathValue("id"))
	cell, ok := s.deps.Cells.Cell(id)
	if !ok {
		writeCellNotFound(w, id)
		return
	}

	switch cell.Kind {
	case api.CellKindCode:
		s.runCodeCell(w, r, cell)
	case api.CellKindPrompt:
		s.runPromptCell(w, r, cell)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// runCodeCell dispatches the cell to the engine and waits on its
// outcome future.
func (s *Server) runCodeCell(w http.ResponseWriter, r *http.Request, cell api.Cell) {
	future := s.deps.Runner.RunNow(cell.ID)

	select {
	case outcome, ok := <-future:
		if !ok {
			transport.WriteError(w, api.NewSandboxUnavailableError("execution engine is shutting down"))
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	case <-r.Context().Done():
		// Client went away. The run keeps going; its outcome reaches
		// the notebook through the state updater and the event stream.
	}
}

// runPromptCell resolves the cell's model and performs the completion
// call in the request handler. The call is registered in the in-flight
// table so stop requests can cancel it.
func (s *Server) runPromptCell(w http.ResponseWriter, r *http.Request, cell api.Cell) {
	if cell.Model == "" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("model", "prompt cell has no model configured"),
			http.StatusBadRequest,
		)
		return
	}

	start := time.Now()

	prompt := cell.Source
	if s.deps.Expander != nil {
		expanded, err := s.deps.Expander.ExpandTemplate(cell.Source, s.deps.Cells.Snapshot())
		if err != nil {
			s.resolvePromptRun(w, cell.ID, start, "", err, false)
			return
		}
		prompt = expanded
	}

	model, err := s.deps.Resolver.Hydrate(cell.Model)
	if err != nil {
		s.resolvePromptRun(w, cell.ID, start, "", err, false)
		return
	}

	invoker, err := s.deps.Invokers(model.Kind, model.Endpoint, model.Credential)
	if err != nil {
		s.resolvePromptRun(w, cell.ID, start, "", err, false)
		return
	}
	defer invoker.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	remove := s.inflight.Register(cell.ID, cancel)
	defer remove()

	s.deps.Events.UpdateCellState(ctx, api.CellUpdate{
		CellID: cell.ID,
		Reason: api.UpdateReasonRunning,
	})

	comp, err := invoker.Complete(ctx, &provider.Request{
		Model:  model.Name,
		Prompt: prompt,
	})
	observability.ProviderLatency.WithLabelValues(string(model.Kind)).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		observability.ProviderRequestsTotal.WithLabelValues(string(model.Kind), "ok").Inc()
	case ctx.Err() != nil:
		observability.ProviderRequestsTotal.WithLabelValues(string(model.Kind), "cancelled").Inc()
	default:
		observability.ProviderRequestsTotal.WithLabelValues(string(model.Kind), "error").Inc()
	}

	if err != nil {
		s.resolvePromptRun(w, cell.ID, start, "", err, ctx.Err() != nil)
		return
	}
	s.resolvePromptRun(w, cell.ID, start, comp.Text, nil, false)
}

// resolvePromptRun records the run's terminal state and writes the
// outcome. Failures after dispatch resolve as error outcomes with HTTP
// 200: the run happened, the cell carries the error.
func (s *Server) resolvePromptRun(w http.ResponseWriter, id api.CellID, start time.Time, text string, err error, stopped bool) {
	outcome := api.RunOutcome{
		CellID:     id,
		DurationMs: time.Since(start).Milliseconds(),
	}
	update := api.CellUpdate{CellID: id, DurationMs: outcome.DurationMs}

	switch {
	case stopped:
		outcome.Status = api.RunStatusStopped
		update.Reason = api.UpdateReasonStopped
	case err != nil:
		outcome.Status = api.RunStatusError
		outcome.ErrorMessage = errorMessage(err)
		update.Reason = api.UpdateReasonError
		update.ErrorMessage = outcome.ErrorMessage
	default:
		outcome.Status = api.RunStatusOK
		outcome.Value = text
		update.Reason = api.UpdateReasonResult
		update.Output = text
	}

	s.deps.Events.UpdateCellState(context.Background(), update)
	writeJSON(w, http.StatusOK, outcome)
}

// scheduleRequest is the body of POST /v1/cells/{id}/schedule.
type scheduleRequest struct {
	// DelayMs overrides the engine's debounce delay. Zero or omitted
	// uses the engine default.
	DelayMs int64 `json:"delay_ms"`
}

// handleScheduleRun handles POST /v1/cells/{id}/schedule. Repeated
// calls within the delay window coalesce into a single run.
func (s *Server) handleScheduleRun(w http.ResponseWriter, r *http.Request) {
	id := api.CellID(r.PathValue("id"))
	if _, ok := s.deps.Cells.Cell(id); !ok {
		writeCellNotFound(w, id)
		return
	}

	var req scheduleRequest
	if !s.readOptionalJSON(w, r, &req) {
		return
	}
	if req.DelayMs < 0 {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("delay_ms", "delay_ms must not be negative"),
			http.StatusBadRequest,
		)
		return
	}

	s.deps.Runner.ScheduleRun(id, time.Duration(req.DelayMs)*time.Millisecond)
	w.WriteHeader(http.StatusAccepted)
}

// handleStopCell handles POST /v1/cells/{id}/stop. Stopping a cell
// that is not running is a no-op.
func (s *Server) handleStopCell(w http.ResponseWriter, r *http.Request) {
	id := api.CellID(r.PathValue("id"))
	s.deps.Runner.Stop(id)
	s.inflight.Cancel(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleStopAll handles POST /v1/cells/stop-all.
func (s *Server) handleStopAll(w http.ResponseWriter, _ *http.Request) {
	s.deps.Runner.StopAll()
	s.inflight.CancelAll()
	w.WriteHeader(http.StatusNoContent)
}

// runningResponse is the body of GET /v1/cells/{id}/running.
type runningResponse struct {
	CellID     api.CellID `json:"cell_id"`
	Running    bool       `json:"running"`
	Generation uint64     `json:"generation"`
}

// handleRunningState handles GET /v1/cells/{id}/running. A cell is
// running when the engine holds an unresolved run for it or a prompt
// invocation is in flight.
func (s *Server) handleRunningState(w http.ResponseWriter, r *http.Request) {
	id := api.CellID(r.PathValue("id"))
	writeJSON(w, http.StatusOK, runningResponse{
		CellID:     id,
		Running:    s.deps.Runner.IsRunning(id) || s.inflight.Active(id),
		Generation: s.deps.Runner.Generation(id),
	})
}

// errorMessage prefers the structured message of a core error.
func errorMessage(err error) string {
	if coreErr, ok := api.AsCoreError(err); ok {
		return coreErr.Message
	}
	return err.Error()
}

func writeCellNotFound(w http.ResponseWriter, id api.CellID) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("id", fmt.Sprintf("cell %q not found", id)),
		http.StatusNotFound,
	)
}
