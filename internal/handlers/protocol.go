package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"predictionledger/internal/logger"
	"predictionledger/internal/storage"
)

// SetPausedRequest is the request body for POST /api/protocol/pause
type SetPausedRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

// HandleProtocol handles GET /api/protocol
func (h *Handlers) HandleProtocol() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := h.engine.Protocol(r.Context())
		if err != nil {
			respondLedgerError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, ps)
	}
}

// HandleSetPaused handles POST /api/protocol/pause. Only the protocol authority may call it.
func (h *Handlers) HandleSetPaused() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, "pause")
		if !ok {
			return
		}

		var req SetPausedRequest
		if err := decodeAndValidate(w, r, &req, identity, "pause"); err != nil {
			return
		}

		ps, err := h.engine.SetPaused(r.Context(), identity, *req.Paused)
		if err != nil {
			logger.Debug(identity, "pause_failed", "error="+err.Error())
			respondLedgerError(w, err)
			return
		}

		logger.Debug(identity, "pause_success", fmt.Sprintf("paused=%t", ps.IsPaused))
		respondJSON(w, http.StatusOK, ps)
	}
}

// HandleListEvents handles GET /api/events?after=<seq>&limit=<n>, reading the
// event outbox in commit order.
func (h *Handlers) HandleListEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		events, err := h.store.Events(r.Context(), after, limit)
		if err != nil {
			respondLedgerError(w, err)
			return
		}
		if events == nil {
			events = []storage.StoredEvent{}
		}
		respondJSON(w, http.StatusOK, events)
	}
}
