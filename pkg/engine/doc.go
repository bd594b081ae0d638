// Package engine schedules and supervises notebook cell runs.
// The Engine keeps one record per cell holding its generation counter,
// debounce timer and the pending run future. Each dispatched run is
// stamped with the generation it belongs to, and a reply is accepted
// only when its generation matches the record exactly; replies from
// superseded or stopped runs are discarded. Outcomes flow back to the
// notebook layer through the StateUpdater collaborator, execution
// contexts come from a sandbox.Pool keyed by cell.
package engine
