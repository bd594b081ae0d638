package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/notebook"
)

func TestPutCell_Creates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/cells/c1", api.Cell{Kind: api.CellKindCode, Source: "1+1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var got api.Cell
	decodeResponse(t, rec, &got)
	if got.ID != "c1" {
		t.Errorf("returned cell id = %q, want %q", got.ID, "c1")
	}

	stored, ok := env.cells.Cell("c1")
	if !ok {
		t.Fatal("cell not in store after PUT")
	}
	if stored.Source != "1+1" {
		t.Errorf("stored source = %q, want %q", stored.Source, "1+1")
	}
}

func TestPutCell_BodyIDMismatch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/cells/c1",
		api.Cell{ID: "other", Kind: api.CellKindCode, Source: "1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	coreErr := decodeError(t, rec)
	if coreErr.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error type = %q, want %q", coreErr.Type, api.ErrorTypeInvalidRequest)
	}
	if coreErr.Param != "id" {
		t.Errorf("error param = %q, want %q", coreErr.Param, "id")
	}
}

func TestPutCell_InvalidKind(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/cells/c1",
		map[string]string{"kind": "spreadsheet", "source": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetCell(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "6*7"})

	env.events.UpdateCellState(t.Context(), api.CellUpdate{
		CellID: "c1",
		Reason: api.UpdateReasonResult,
		Output: "42",
	})

	rec := env.do(t, http.MethodGet, "/v1/cells/c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var view notebook.CellView
	decodeResponse(t, rec, &view)
	if view.ID != "c1" {
		t.Errorf("cell id = %q, want %q", view.ID, "c1")
	}
	if view.State == nil {
		t.Fatal("view has no state after an update")
	}
	if view.State.Output != "42" {
		t.Errorf("state output = %q, want %q", view.State.Output, "42")
	}
}

func TestGetCell_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/cells/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListCells(t *testing.T) {
	env := newTestEnv(t,
		api.Cell{ID: "a", Kind: api.CellKindMarkdown, Source: "# Title"},
		api.Cell{ID: "b", Kind: api.CellKindCode, Source: "1"},
		api.Cell{ID: "c", Kind: api.CellKindPrompt, Source: "hi", Model: "OpenAI/gpt-4"},
	)

	rec := env.do(t, http.MethodGet, "/v1/cells", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Object string              `json:"object"`
		Data   []notebook.CellView `json:"data"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Object != "list" {
		t.Errorf("object = %q, want %q", resp.Object, "list")
	}
	if len(resp.Data) != 3 {
		t.Fatalf("len(data) = %d, want 3", len(resp.Data))
	}
	for i, want := range []api.CellID{"a", "b", "c"} {
		if resp.Data[i].ID != want {
			t.Errorf("data[%d].id = %q, want %q", i, resp.Data[i].ID, want)
		}
	}
}

func TestDeleteCell(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "1"})

	rec := env.do(t, http.MethodDelete, "/v1/cells/c1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if _, ok := env.cells.Cell("c1"); ok {
		t.Error("cell still in store after DELETE")
	}
	if len(env.runner.stopped) != 1 || env.runner.stopped[0] != "c1" {
		t.Errorf("runner stops = %v, want [c1]", env.runner.stopped)
	}

	rec = env.do(t, http.MethodDelete, "/v1/cells/c1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRunCell_Code(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "6*7"})
	env.runner.outcomes["c1"] = api.RunOutcome{
		CellID:     "c1",
		Generation: 3,
		Status:     api.RunStatusOK,
		Value:      "42",
		DurationMs: 12,
	}

	rec := env.do(t, http.MethodPost, "/v1/cells/c1/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var outcome api.RunOutcome
	decodeResponse(t, rec, &outcome)
	if outcome.Status != api.RunStatusOK {
		t.Errorf("status = %q, want %q", outcome.Status, api.RunStatusOK)
	}
	if outcome.Value != "42" {
		t.Errorf("value = %q, want %q", outcome.Value, "42")
	}
	if outcome.Generation != 3 {
		t.Errorf("generation = %d, want 3", outcome.Generation)
	}
}

func TestRunCell_CodeEngineClosed(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "1"})
	env.runner.closeFuture = true

	rec := env.do(t, http.MethodPost, "/v1/cells/c1/run", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	coreErr := decodeError(t, rec)
	if coreErr.Type != api.ErrorTypeSandboxUnavailable {
		t.Errorf("error type = %q, want %q", coreErr.Type, api.ErrorTypeSandboxUnavailable)
	}
}

func TestRunCell_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/cells/ghost/run", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRunCell_MarkdownIsNoOp(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "m1", Kind: api.CellKindMarkdown, Source: "# hi"})

	rec := env.do(t, http.MethodPost, "/v1/cells/m1/run", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestRunCell_Prompt(t *testing.T) {
	env := newTestEnv(t, api.Cell{
		ID: "p1", Kind: api.CellKindPrompt, Source: "say hi", Model: "OpenAI/gpt-4",
	})
	env.seedModel(t)

	updates, cancelSub := env.events.Subscribe()
	defer cancelSub()

	rec := env.do(t, http.MethodPost, "/v1/cells/p1/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var outcome api.RunOutcome
	decodeResponse(t, rec, &outcome)
	if outcome.Status != api.RunStatusOK {
		t.Fatalf("outcome status = %q, want %q (%s)", outcome.Status, api.RunStatusOK, outcome.ErrorMessage)
	}
	if outcome.Value != "reply: say hi" {
		t.Errorf("outcome value = %q, want %q", outcome.Value, "reply: say hi")
	}

	if req := env.invoker.last(); req == nil || req.Model != "gpt-4" {
		t.Errorf("invoker request = %+v, want model gpt-4", req)
	}

	first := receiveUpdate(t, updates)
	if first.Reason != api.UpdateReasonRunning {
		t.Errorf("first update reason = %q, want %q", first.Reason, api.UpdateReasonRunning)
	}
	second := receiveUpdate(t, updates)
	if second.Reason != api.UpdateReasonResult {
		t.Errorf("second update reason = %q, want %q", second.Reason, api.UpdateReasonResult)
	}
	if second.Output != "reply: say hi" {
		t.Errorf("second update output = %q, want %q", second.Output, "reply: say hi")
	}
}

func receiveUpdate(t *testing.T, ch <-chan api.CellUpdate) api.CellUpdate {
	t.Helper()
	select {
	case update := <-ch:
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cell update")
		return api.CellUpdate{}
	}
}

func TestRunCell_PromptWithoutModel(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "p1", Kind: api.CellKindPrompt, Source: "hi"})

	rec := env.do(t, http.MethodPost, "/v1/cells/p1/run", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	coreErr := decodeError(t, rec)
	if coreErr.Param != "model" {
		t.Errorf("error param = %q, want %q", coreErr.Param, "model")
	}
}

func TestRunCell_PromptModelNotFound(t *testing.T) {
	env := newTestEnv(t, api.Cell{
		ID: "p1", Kind: api.CellKindPrompt, Source: "hi", Model: "OpenAI/gone",
	})

	rec := env.do(t, http.MethodPost, "/v1/cells/p1/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var outcome api.RunOutcome
	decodeResponse(t, rec, &outcome)
	if outcome.Status != api.RunStatusError {
		t.Errorf("outcome status = %q, want %q", outcome.Status, api.RunStatusError)
	}
	if outcome.ErrorMessage == "" {
		t.Error("outcome has no error message")
	}

	view, _ := env.cells.View("p1")
	if view.State == nil || view.State.Reason != api.UpdateReasonError {
		t.Errorf("cell state = %+v, want error reason", view.State)
	}
}

func TestRunCell_PromptInvokerError(t *testing.T) {
	env := newTestEnv(t, api.Cell{
		ID: "p1", Kind: api.CellKindPrompt, Source: "hi", Model: "OpenAI/gpt-4",
	})
	env.seedModel(t)
	env.invoker.completeErr = api.NewProviderHTTPError(http.StatusInternalServerError, "upstream exploded")

	rec := env.do(t, http.MethodPost, "/v1/cells/p1/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var outcome api.RunOutcome
	decodeResponse(t, rec, &outcome)
	if outcome.Status != api.RunStatusError {
		t.Errorf("outcome status = %q, want %q", outcome.Status, api.RunStatusError)
	}
}

func TestRunCell_PromptStopCancels(t *testing.T) {
	env := newTestEnv(t, api.Cell{
		ID: "p1", Kind: api.CellKindPrompt, Source: "slow", Model: "OpenAI/gpt-4",
	})
	env.seedModel(t)
	env.invoker.blockOnCtx = true

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- env.do(t, http.MethodPost, "/v1/cells/p1/run", nil)
	}()

	// Wait for the invocation to appear in the in-flight table.
	deadline := time.After(2 * time.Second)
	for {
		rec := env.do(t, http.MethodGet, "/v1/cells/p1/running", nil)
		var state runningResponse
		decodeResponse(t, rec, &state)
		if state.Running {
			break
		}
		select {
		case <-deadline:
			t.Fatal("prompt run never became active")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if rec := env.do(t, http.MethodPost, "/v1/cells/p1/stop", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("stop status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	select {
	case rec := <-done:
		if rec.Code != http.StatusOK {
			t.Fatalf("run status = %d, want %d", rec.Code, http.StatusOK)
		}
		var outcome api.RunOutcome
		decodeResponse(t, rec, &outcome)
		if outcome.Status != api.RunStatusStopped {
			t.Errorf("outcome status = %q, want %q", outcome.Status, api.RunStatusStopped)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not resolve after stop")
	}

	view, _ := env.cells.View("p1")
	if view.State == nil || view.State.Reason != api.UpdateReasonStopped {
		t.Errorf("cell state = %+v, want stopped reason", view.State)
	}
}

func TestScheduleRun(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "1"})

	rec := env.do(t, http.MethodPost, "/v1/cells/c1/schedule", scheduleRequest{DelayMs: 250})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	if len(env.runner.scheduled) != 1 {
		t.Fatalf("scheduled calls = %d, want 1", len(env.runner.scheduled))
	}
	call := env.runner.scheduled[0]
	if call.cellID != "c1" || call.delay != 250*time.Millisecond {
		t.Errorf("scheduled = %+v, want cell c1 with 250ms", call)
	}
}

func TestScheduleRun_EmptyBodyUsesDefault(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "1"})

	rec := env.do(t, http.MethodPost, "/v1/cells/c1/schedule", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if len(env.runner.scheduled) != 1 || env.runner.scheduled[0].delay != 0 {
		t.Errorf("scheduled = %+v, want one call with zero delay", env.runner.scheduled)
	}
}

func TestScheduleRun_NegativeDelay(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "1"})

	rec := env.do(t, http.MethodPost, "/v1/cells/c1/schedule", scheduleRequest{DelayMs: -5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestScheduleRun_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/cells/ghost/schedule", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStopCell(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "1"})

	rec := env.do(t, http.MethodPost, "/v1/cells/c1/stop", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(env.runner.stopped) != 1 || env.runner.stopped[0] != "c1" {
		t.Errorf("runner stops = %v, want [c1]", env.runner.stopped)
	}
}

func TestStopAll(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/cells/stop-all", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if env.runner.stopAllN != 1 {
		t.Errorf("StopAll calls = %d, want 1", env.runner.stopAllN)
	}
}

func TestRunningState(t *testing.T) {
	env := newTestEnv(t, api.Cell{ID: "c1", Kind: api.CellKindCode, Source: "1"})
	env.runner.running["c1"] = true
	env.runner.generations["c1"] = 7

	rec := env.do(t, http.MethodGet, "/v1/cells/c1/running", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var state runningResponse
	decodeResponse(t, rec, &state)
	if !state.Running {
		t.Error("running = false, want true")
	}
	if state.Generation != 7 {
		t.Errorf("generation = %d, want 7", state.Generation)
	}
}
