package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const heartbeatInterval = 25 * time.Second

// eventsHandler streams a toast for every new order or inquiry as
// server-sent events until the browser disconnects
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Realtime feed unavailable")
		return
	}

	rc := http.NewResponseController(w)

	// the stream outlives the server's write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("Could not clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")

	if err := rc.Flush(); err != nil {
		s.logger.Error("Streaming unsupported", "error", err)
		return
	}

	ctx := r.Context()
	toasts := s.deps.Events.Subscribe(ctx)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case toast, ok := <-toasts:
			if !ok {
				return
			}

			data, err := json.Marshal(toast)
			if err != nil {
				s.logger.Error("Failed to marshal toast", "error", err)
				continue
			}

			fmt.Fprintf(w, "event: toast\ndata: %s\n\n", data)

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
		}

		if err := rc.Flush(); err != nil {
			return
		}
	}
}
