package webapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Handlers holds the HTTP handler methods for the session API.
type Handlers struct {
	bridge *Bridge
}

// NewHandlers creates a new Handlers around a bridge.
func NewHandlers(bridge *Bridge) *Handlers {
	return &Handlers{bridge: bridge}
}

// HandleSession returns the session description.
func (h *Handlers) HandleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.bridge.Session())
}

// HandleTrial returns the current trial, or the waiting/done state.
func (h *Handlers) HandleTrial(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.bridge.Trial())
}

// HandleResponse accepts a response payload for the live trial. The body is
// free-form JSON; normalization sorts out choice keys from field maps.
func (h *Handlers) HandleResponse(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if err := h.bridge.Respond(payload); err != nil {
		writeBridgeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleGiveUp triggers the live trial's give-up affordance.
func (h *Handlers) HandleGiveUp(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if err := h.bridge.GiveUp(payload); err != nil {
		writeBridgeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RegisterRoutes registers all session API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, bridge *Bridge) {
	h := NewHandlers(bridge)
	mux.HandleFunc("GET /api/session", h.HandleSession)
	mux.HandleFunc("GET /api/trial", h.HandleTrial)
	mux.HandleFunc("POST /api/response", h.HandleResponse)
	mux.HandleFunc("POST /api/giveup", h.HandleGiveUp)
}

func decodeBody(w http.ResponseWriter, r *http.Request) (any, bool) {
	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return payload, true
}

func writeBridgeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNoLiveTrial) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: status})
}
