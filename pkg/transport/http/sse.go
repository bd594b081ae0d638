package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleEvents handles GET /v1/cells/events: a server-sent event
// stream of cell state updates. Each update is one event:
//
//	event: cell.update\n
//	data: {json}\n
//	\n
//
// Comment lines keep idle connections alive through proxies. The
// stream ends when the client disconnects or the server shuts down.
// Slow consumers lose updates rather than stalling the publishers; a
// client that needs full state re-reads GET /v1/cells after a gap.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	updates, cancel := s.deps.Events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// Lift the server write deadline; the stream outlives any
	// per-response timeout and is bounded by the client instead.
	_ = rc.SetWriteDeadline(time.Time{})
	if err := rc.Flush(); err != nil {
		return
	}

	keepalive := time.NewTicker(s.config.KeepAliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: cell.update\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
