package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/notebook"
)

func TestCellLifecycle(t *testing.T) {
	cell := api.Cell{ID: "life-1", Kind: api.CellKindCode, Source: "x = 1"}
	putCell(t, cell)

	resp := getURL(t, testEnv.BaseURL()+"/v1/cells/life-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET cell: expected 200, got %d", resp.StatusCode)
	}
	var view notebook.CellView
	decodeJSON(t, resp, &view)
	if view.ID != cell.ID || view.Kind != cell.Kind || view.Source != cell.Source {
		t.Errorf("cell view = %+v, want %+v", view.Cell, cell)
	}
	if view.State != nil {
		t.Errorf("fresh cell has state %+v, want none", view.State)
	}

	resp = getURL(t, testEnv.BaseURL()+"/v1/cells")
	var list struct {
		Object string              `json:"object"`
		Data   []notebook.CellView `json:"data"`
	}
	decodeJSON(t, resp, &list)
	if list.Object != "list" {
		t.Errorf("list object = %q, want list", list.Object)
	}
	found := false
	for _, v := range list.Data {
		if v.ID == cell.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("cell %s missing from list of %d cells", cell.ID, len(list.Data))
	}

	resp = deleteURL(t, testEnv.BaseURL()+"/v1/cells/life-1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE: expected 204, got %d", resp.StatusCode)
	}

	resp = getURL(t, testEnv.BaseURL()+"/v1/cells/life-1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestRunCodeCell(t *testing.T) {
	putCell(t, api.Cell{ID: "run-ok", Kind: api.CellKindCode, Source: "1+1"})

	outcome := runCell(t, "run-ok")
	if outcome.Status != api.RunStatusOK {
		t.Fatalf("outcome status = %q, want ok (error: %s)", outcome.Status, outcome.ErrorMessage)
	}
	if outcome.Value != "2" {
		t.Errorf("outcome value = %q, want 2", outcome.Value)
	}
	if outcome.Generation != 1 {
		t.Errorf("outcome generation = %d, want 1", outcome.Generation)
	}

	view := awaitCellState(t, "run-ok", api.UpdateReasonResult)
	if view.State.Output != "2" {
		t.Errorf("recorded output = %q, want 2", view.State.Output)
	}
}

func TestRunCodeCellError(t *testing.T) {
	putCell(t, api.Cell{ID: "run-err", Kind: api.CellKindCode, Source: "raise ValueError()"})

	outcome := runCell(t, "run-err")
	if outcome.Status != api.RunStatusError {
		t.Fatalf("outcome status = %q, want error", outcome.Status)
	}
	if !strings.Contains(outcome.ErrorMessage, "RuntimeError") {
		t.Errorf("error message = %q, want it to name the fault", outcome.ErrorMessage)
	}
	if outcome.Value != "" {
		t.Errorf("error outcome carries value %q, want empty", outcome.Value)
	}

	view := awaitCellState(t, "run-err", api.UpdateReasonError)
	if view.State.ErrorMessage == "" {
		t.Error("recorded state has no error message")
	}
}

func TestRunMarkdownCellIsNoop(t *testing.T) {
	putCell(t, api.Cell{ID: "run-md", Kind: api.CellKindMarkdown, Source: "# heading"})

	resp := postJSON(t, testEnv.BaseURL()+"/v1/cells/run-md/run", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("run markdown: expected 204, got %d", resp.StatusCode)
	}
}

func TestRunPromptCell(t *testing.T) {
	putCell(t, api.Cell{
		ID:     "run-prompt",
		Kind:   api.CellKindPrompt,
		Source: "Please count from 1 to 5",
		Model:  "OpenAI/mock-small",
	})

	outcome := runCell(t, "run-prompt")
	if outcome.Status != api.RunStatusOK {
		t.Fatalf("outcome status = %q, want ok (error: %s)", outcome.Status, outcome.ErrorMessage)
	}
	if outcome.Value != "1, 2, 3, 4, 5" {
		t.Errorf("outcome value = %q, want the canned counting reply", outcome.Value)
	}

	if got := testEnv.LastAuthHeader(); got != "Bearer test-key" {
		t.Errorf("upstream Authorization = %q, want the configured credential", got)
	}

	view := awaitCellState(t, "run-prompt", api.UpdateReasonResult)
	if view.State.Output != outcome.Value {
		t.Errorf("recorded output = %q, want %q", view.State.Output, outcome.Value)
	}
}

func TestRunPromptCellUpstreamFailure(t *testing.T) {
	putCell(t, api.Cell{
		ID:     "run-prompt-fail",
		Kind:   api.CellKindPrompt,
		Source: "please fail",
		Model:  "OpenAI/mock-small",
	})

	// A provider fault after dispatch is a run outcome, not an HTTP
	// error: the run happened, the cell carries the error.
	outcome := runCell(t, "run-prompt-fail")
	if outcome.Status != api.RunStatusError {
		t.Fatalf("outcome status = %q, want error", outcome.Status)
	}
	if !strings.Contains(outcome.ErrorMessage, "injected failure") {
		t.Errorf("error message = %q, want the upstream message", outcome.ErrorMessage)
	}

	awaitCellState(t, "run-prompt-fail", api.UpdateReasonError)
}

func TestRunPromptCellWithoutModel(t *testing.T) {
	putCell(t, api.Cell{ID: "run-prompt-nomodel", Kind: api.CellKindPrompt, Source: "hi"})

	resp := postJSON(t, testEnv.BaseURL()+"/v1/cells/run-prompt-nomodel/run", nil)
	if resp.StatusCode != http.StatusBadRequest {
		body := readBody(t, resp)
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil || errResp.Error.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error = %+v, want invalid_request", errResp.Error)
	}
}

func TestScheduleRunCoalesces(t *testing.T) {
	putCell(t, api.Cell{ID: "sched-1", Kind: api.CellKindCode, Source: "1+1"})

	for i := 0; i < 2; i++ {
		resp := postJSON(t, testEnv.BaseURL()+"/v1/cells/sched-1/schedule",
			map[string]any{"delay_ms": 150})
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("schedule: expected 202, got %d", resp.StatusCode)
		}
	}

	view := awaitCellState(t, "sched-1", api.UpdateReasonResult)
	if view.State.Output != "2" {
		t.Errorf("recorded output = %q, want 2", view.State.Output)
	}

	// Both schedule calls fell into one debounce window, so exactly one
	// run was dispatched.
	resp := getURL(t, testEnv.BaseURL()+"/v1/cells/sched-1/running")
	var state struct {
		Running    bool   `json:"running"`
		Generation uint64 `json:"generation"`
	}
	decodeJSON(t, resp, &state)
	if state.Generation != 1 {
		t.Errorf("generation = %d, want 1 coalesced run", state.Generation)
	}
}

func TestStopRunningCell(t *testing.T) {
	putCell(t, api.Cell{ID: "stop-1", Kind: api.CellKindCode, Source: "hang forever"})

	resp := postJSON(t, testEnv.BaseURL()+"/v1/cells/stop-1/schedule",
		map[string]any{"delay_ms": 1})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("schedule: expected 202, got %d", resp.StatusCode)
	}
	awaitRunning(t, "stop-1", true)

	resp = postJSON(t, testEnv.BaseURL()+"/v1/cells/stop-1/stop", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stop: expected 204, got %d", resp.StatusCode)
	}

	awaitRunning(t, "stop-1", false)
	awaitCellState(t, "stop-1", api.UpdateReasonStopped)
}

func TestRunSupersedesPrior(t *testing.T) {
	putCell(t, api.Cell{ID: "supersede-1", Kind: api.CellKindCode, Source: "hang forever"})

	// First run never resolves on its own; collect its outcome from a
	// goroutine so the supersede can release it.
	first := make(chan api.RunOutcome, 1)
	go func() {
		resp, err := http.Post(testEnv.BaseURL()+"/v1/cells/supersede-1/run", "application/json", nil)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		var outcome api.RunOutcome
		if json.NewDecoder(resp.Body).Decode(&outcome) == nil {
			first <- outcome
		}
	}()
	awaitRunning(t, "supersede-1", true)

	putCell(t, api.Cell{ID: "supersede-1", Kind: api.CellKindCode, Source: "1+1"})
	second := runCell(t, "supersede-1")
	if second.Status != api.RunStatusOK || second.Value != "2" {
		t.Fatalf("second run = %+v, want ok with value 2", second)
	}
	if second.Generation != 2 {
		t.Errorf("second generation = %d, want 2", second.Generation)
	}

	select {
	case outcome := <-first:
		if outcome.Status != api.RunStatusStopped {
			t.Errorf("first run status = %q, want stopped", outcome.Status)
		}
		if outcome.Generation != 1 {
			t.Errorf("first run generation = %d, want 1", outcome.Generation)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first run outcome never arrived")
	}
}

func TestDeleteStopsRunningCell(t *testing.T) {
	putCell(t, api.Cell{ID: "del-running", Kind: api.CellKindCode, Source: "hang forever"})

	resp := postJSON(t, testEnv.BaseURL()+"/v1/cells/del-running/schedule",
		map[string]any{"delay_ms": 1})
	resp.Body.Close()
	awaitRunning(t, "del-running", true)

	resp = deleteURL(t, testEnv.BaseURL()+"/v1/cells/del-running")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}

	awaitRunning(t, "del-running", false)
	resp = getURL(t, testEnv.BaseURL()+"/v1/cells/del-running")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete: expected 404, got %d", resp.StatusCode)
	}
}
