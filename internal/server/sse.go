package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/telebiz/agentcore/internal/agent"
)

// stream writes each turn event as an SSE frame named after its type. The
// turn is bound to the request context, so a client that disconnects
// cancels it; events are drained until the channel closes either way.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, events <-chan agent.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		for range events {
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	gone := false
	for ev := range events {
		if gone {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.log.Error("sse_marshal_failed", map[string]any{"type": string(ev.Type)}, err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			gone = true
			continue
		}
		flusher.Flush()
		if r.Context().Err() != nil {
			gone = true
		}
	}
}
