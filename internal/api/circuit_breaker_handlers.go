package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nzskirting/orderdesk/pkg/circuitbreaker"
)

// getWebhookStatusHandler returns the breaker state of every outbound webhook
func (s *Server) getWebhookStatusHandler(w http.ResponseWriter, r *http.Request) {
	snapshots := make([]circuitbreaker.Snapshot, 0, len(s.deps.Breakers))
	for _, b := range s.deps.Breakers {
		snapshots = append(snapshots, b.Snapshot())
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: snapshots})
}

// resetWebhookHandler closes a webhook's breaker so the next submission is forwarded
func (s *Server) resetWebhookHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	for _, b := range s.deps.Breakers {
		snap := b.Snapshot()
		if snap.Name != name {
			continue
		}

		b.Reset()
		s.logger.Info("Webhook circuit breaker reset", "webhook", name)
		s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: b.Snapshot()})
		return
	}

	s.respondWithError(w, http.StatusNotFound, "Unknown webhook")
}
