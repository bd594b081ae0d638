package api

import "time"

// ---------------------------------------------------------------------------
// Cells
// ---------------------------------------------------------------------------

// CellID identifies a notebook cell. IDs are assigned by the notebook
// layer; the execution core treats them as opaque and stable.
type CellID string

// CellKind discriminates what a cell's source text means and which
// execution path, if any, applies to it.
type CellKind string

const (
	CellKindCode     CellKind = "code"
	CellKindPrompt   CellKind = "prompt"
	CellKindMarkdown CellKind = "markdown"
	CellKindData     CellKind = "data"
)

// Executable reports whether the execution core acts on cells of this
// kind. Markdown and data cells are rendered, never run.
func (k CellKind) Executable() bool {
	return k == CellKindCode || k == CellKindPrompt
}

// Cell is a read-only snapshot of a notebook cell at dispatch time.
// The notebook layer owns cell lifecycle; the core only reads snapshots.
type Cell struct {
	ID     CellID   `json:"id"`
	Kind   CellKind `json:"kind"`
	Source string   `json:"source"`
	// Model holds the persisted model identifier for prompt cells,
	// in canonical "Label/name" or legacy "providerId:name" form.
	Model string `json:"model,omitempty"`
}

// ---------------------------------------------------------------------------
// Run outcomes
// ---------------------------------------------------------------------------

// RunStatus is the terminal status of a cell run. Stopped is a distinct
// status, not an error: an explicitly stopped run resolved cleanly.
type RunStatus string

const (
	RunStatusOK      RunStatus = "ok"
	RunStatusError   RunStatus = "error"
	RunStatusStopped RunStatus = "stopped"
)

// RunOutcome is the resolved result of a single cell run. Exactly one
// outcome is produced per dispatched generation; superseded and stopped
// runs resolve with RunStatusStopped.
type RunOutcome struct {
	CellID       CellID    `json:"cell_id"`
	Generation   uint64    `json:"generation"`
	Status       RunStatus `json:"status"`
	Value        string    `json:"value,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
}

// UpdateReason tells the notebook layer why a cell's state changed.
type UpdateReason string

const (
	UpdateReasonResult  UpdateReason = "result"
	UpdateReasonError   UpdateReason = "error"
	UpdateReasonStopped UpdateReason = "stopped"
	UpdateReasonRunning UpdateReason = "running"
)

// CellUpdate carries one cell state change to the notebook layer.
// Output and ErrorMessage are mutually exclusive; DurationMs is zero
// for updates that do not terminate a run.
type CellUpdate struct {
	CellID       CellID       `json:"cell_id"`
	Reason       UpdateReason `json:"reason"`
	Output       string       `json:"output,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	DurationMs   int64        `json:"duration_ms,omitempty"`
}

// ---------------------------------------------------------------------------
// Catalog refresh outcomes
// ---------------------------------------------------------------------------

// RefreshStatus summarizes a catalog refresh across all providers.
type RefreshStatus string

const (
	// RefreshAllSucceeded: every configured provider returned its models.
	RefreshAllSucceeded RefreshStatus = "all-succeeded"
	// RefreshPartial: some providers failed, some returned models.
	RefreshPartial RefreshStatus = "partial"
	// RefreshTotalFailure: every provider call failed; the previous
	// catalog is kept.
	RefreshTotalFailure RefreshStatus = "total-failure"
	// RefreshNeedsConfiguration: no providers are configured.
	RefreshNeedsConfiguration RefreshStatus = "needs-configuration"
	// RefreshSkipped: another refresh was already in flight; this call
	// performed no network activity.
	RefreshSkipped RefreshStatus = "skipped"
)

// ProviderFailure records one provider's refresh error.
type ProviderFailure struct {
	ProviderID string `json:"provider_id"`
	Message    string `json:"message"`
}

// RefreshOutcome summarizes one catalog refresh. Failures lists the
// providers whose list-models call errored; ModelCount counts the
// models in the replacement catalog.
type RefreshOutcome struct {
	Status      RefreshStatus     `json:"status"`
	ModelCount  int               `json:"model_count"`
	Failures    []ProviderFailure `json:"failures,omitempty"`
	RefreshedAt time.Time         `json:"refreshed_at"`
}
