/*
scenarios.go - Demo fixture loading over HTTP

PURPOSE:
  Lets a developer reset the store and load one of the embedded YAML
  fixtures (see package fixtures) without restarting the server.

USAGE VIA API:
  POST /api/scenarios/load
  {"name": "school-meals"}

NOTE:
  Loading a scenario wipes every lot and the whole audit trail. The
  routes are only mounted when the handler has a ScenarioStore.
*/
package api

import (
	"net/http"

	"github.com/warp/batch-stock/fixtures"
)

// ListScenarios returns the embedded fixtures.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	names := fixtures.Names()
	dtos := make([]ScenarioDTO, 0, len(names))
	for _, name := range names {
		f, err := fixtures.Builtin(name)
		if err != nil {
			continue
		}
		dtos = append(dtos, ScenarioDTO{Name: f.Name, Description: f.Description})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last loaded fixture, or null.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	f, err := fixtures.Builtin(current)
	if err != nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{Name: f.Name, Description: f.Description})
}

// LoadScenario resets the store and applies a fixture.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := fixtures.Builtin(req.Name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown scenario", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Scenarios.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := f.Apply(ctx, h.Scenarios); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = f.Name

	h.Logger.InfoContext(ctx, "scenario loaded",
		"scenario", f.Name, "materials", len(f.Materials), "lots", len(f.Lots), "recipes", len(f.Recipes))
	writeJSON(w, http.StatusOK, ScenarioDTO{Name: f.Name, Description: f.Description})
}
