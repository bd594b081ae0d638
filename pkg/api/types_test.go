package api

import (
	"encoding/json"
	"testing"
)

func TestCellKindExecutable(t *testing.T) {
	tests := []struct {
		kind CellKind
		want bool
	}{
		{CellKindCode, true},
		{CellKindPrompt, true},
		{CellKindMarkdown, false},
		{CellKindData, false},
		{CellKind("unknown"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Executable(); got != tt.want {
				t.Errorf("CellKind(%q).Executable() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestRunOutcomeJSON(t *testing.T) {
	out := RunOutcome{
		CellID:     "cell-1",
		Generation: 7,
		Status:     RunStatusOK,
		Value:      "42",
		DurationMs: 120,
	}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got RunOutcome
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != out {
		t.Errorf("round trip = %+v, want %+v", got, out)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	if _, ok := m["error_message"]; ok {
		t.Error("empty error_message should be omitted from JSON")
	}
}

func TestRefreshOutcomeFailuresOmitted(t *testing.T) {
	out := RefreshOutcome{Status: RefreshAllSucceeded, ModelCount: 3}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["failures"]; ok {
		t.Error("empty failures should be omitted from JSON")
	}
	if m["status"] != string(RefreshAllSucceeded) {
		t.Errorf("status = %v, want %q", m["status"], RefreshAllSucceeded)
	}
}
