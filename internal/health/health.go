// Package health serves the relay's liveness and readiness probes.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz
// answers 200 only when every registered [Probe] reports Connected, so a
// supervisor can tell a relay that is streaming from one stuck in recovery.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"

	"audio-relay/internal/models"
)

// StateSource is anything exposing a connectivity state
type StateSource interface {
	State() models.LinkState
}

// Probe names one connectivity layer
type Probe struct {
	Name   string
	Source StateSource
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz
type Handler struct {
	probes []Probe
}

// New creates a handler over a fixed set of probes
func New(probes ...Probe) *Handler {
	return &Handler{probes: append([]Probe(nil), probes...)}
}

// Healthz is the liveness probe
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz reports each probe's state and fails unless all are Connected
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	res := response{Status: "ok", Checks: make(map[string]string, len(h.probes))}
	status := http.StatusOK

	for _, p := range h.probes {
		if err := check(p.Source); err != nil {
			res.Checks[p.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[p.Name] = "ok"
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func check(src StateSource) error {
	if state := src.State(); state != models.Connected {
		return fmt.Errorf("state %s", state)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
