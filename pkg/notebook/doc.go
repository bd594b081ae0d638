// Package notebook holds the in-process notebook document: the cell
// table the execution engine reads and the event fan-out it reports
// into.
//
// Store keeps cells in document order and doubles as the engine's cell
// provider. Events implements the engine's state updater by recording
// each update on the owning cell and broadcasting it to subscribers,
// which feeds the SSE stream on the HTTP surface. Dependency tracking
// and template expansion are external collaborators; NoopExpander
// stands in where no templating layer is wired.
package notebook
