/*
handlers.go - HTTP API handlers for batch stock consumption

PURPOSE:
  Exposes the consumption engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the inventory
  package. No stock arithmetic happens here.

ENDPOINTS:
  Recipes:
    POST   /api/recipes/{id}/requirements  Scale a recipe to a target quantity

  Availability:
    POST   /api/availability               Check stock for a list of requests

  Batches:
    POST   /api/batches/{id}/start         Resolve + check + deduct a recipe
    POST   /api/batches/{id}/deductions    Deduct an explicit request list
    POST   /api/batches/{id}/rollback      Restore everything a batch consumed
    GET    /api/batches/{id}/audit         Audit trail of a batch

  Materials:
    GET    /api/materials/{id}/lots        Active lots in FIFO order

  Scenarios:
    GET    /api/scenarios                  List embedded fixtures
    GET    /api/scenarios/current          Last loaded fixture
    POST   /api/scenarios/load             Reset the store and load a fixture

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Recipe, material or lot not found
  - 409: Insufficient inventory, already rolled back, retries exhausted
  - 500: Internal errors

SECURITY NOTE:
  No authentication. actor_id is taken from the request body as-is.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Fixture loading
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/batch-stock/fixtures"
	"github.com/warp/batch-stock/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ScenarioStore is the write surface needed to load fixtures.
type ScenarioStore interface {
	fixtures.Seeder
	fixtures.Resetter
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *inventory.Engine
	Resolver *inventory.Resolver
	Logger   *slog.Logger

	// Scenarios is nil when fixture loading is disabled.
	Scenarios ScenarioStore

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over engine. Reads go through the engine's
// store.
func NewHandler(engine *inventory.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Engine:   engine,
		Resolver: inventory.NewResolver(engine.Store),
		Logger:   logger,
	}
}

// =============================================================================
// RECIPE HANDLERS
// =============================================================================

// ResolveRequirements scales a recipe to a target quantity.
// POST /api/recipes/{id}/requirements
func (h *Handler) ResolveRequirements(w http.ResponseWriter, r *http.Request) {
	recipeID := chi.URLParam(r, "id")

	var req RequirementsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	requests, err := h.Resolver.Resolve(r.Context(), inventory.RecipeID(recipeID), req.TargetQuantity)
	if err != nil {
		h.writeDomainError(w, r, "Failed to resolve recipe", err)
		return
	}

	writeJSON(w, http.StatusOK, RequirementsResponse{
		RecipeID:       recipeID,
		TargetQuantity: req.TargetQuantity,
		Requests:       toRequestDTOs(requests),
	})
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// CheckAvailability reports every short material. A shortage is a normal
// 200 response with ok=false.
// POST /api/availability
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, line := range req.Requests {
		if line.MaterialID == "" || line.Quantity.IsNegative() {
			writeError(w, http.StatusBadRequest, "Each request needs a material_id and a non-negative quantity", nil)
			return
		}
	}

	result, err := h.Engine.CheckAvailability(r.Context(), toDomainRequests(req.Requests))
	if err != nil {
		h.writeDomainError(w, r, "Failed to check availability", err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		OK:           result.OK,
		Insufficient: toInsufficientDTOs(result.Insufficient),
	})
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// StartBatch resolves the recipe, checks stock and deducts in one call.
// POST /api/batches/{id}/start
func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req StartBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RecipeID == "" || req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "recipe_id and actor_id are required", nil)
		return
	}

	result, err := h.Engine.StartBatch(r.Context(),
		inventory.RecipeID(req.RecipeID), req.TargetQuantity,
		inventory.BatchID(batchID), inventory.ActorID(req.ActorID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to start batch", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeductionResponse(result))
}

// DeductBatch deducts an explicit list of material requests.
// POST /api/batches/{id}/deductions
func (h *Handler) DeductBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req DeductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required", nil)
		return
	}

	result, err := h.Engine.Deduct(r.Context(), toDomainRequests(req.Requests),
		inventory.BatchID(batchID), inventory.ActorID(req.ActorID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to deduct batch", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeductionResponse(result))
}

// RollbackBatch restores every lot the batch consumed. A second call
// returns 409.
// POST /api/batches/{id}/rollback
func (h *Handler) RollbackBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req RollbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required", nil)
		return
	}

	result, err := h.Engine.Rollback(r.Context(), inventory.BatchID(batchID), inventory.ActorID(req.ActorID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to roll back batch", err)
		return
	}

	writeJSON(w, http.StatusOK, NewRollbackResponse(result))
}

// GetBatchAudit returns the audit trail of a batch in append order.
// GET /api/batches/{id}/audit
func (h *Handler) GetBatchAudit(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	entries, err := h.Engine.History(r.Context(), inventory.BatchID(batchID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get audit trail", err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MATERIAL HANDLERS
// =============================================================================

// GetMaterialLots lists the active lots of a material, oldest first.
// GET /api/materials/{id}/lots
func (h *Handler) GetMaterialLots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	materialID := inventory.MaterialID(chi.URLParam(r, "id"))

	material, err := h.Engine.Store.Material(ctx, materialID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get material", err)
		return
	}
	lots, err := h.Engine.Store.ActiveLots(ctx, materialID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list lots", err)
		return
	}

	resp := MaterialLotsResponse{
		MaterialID: string(material.ID),
		Name:       material.Name,
		Unit:       string(material.Unit),
		Available:  decimal.Zero,
		Lots:       make([]LotDTO, len(lots)),
	}
	for i, lot := range lots {
		resp.Lots[i] = toLotDTO(lot)
		resp.Available = resp.Available.Add(lot.Quantity)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case inventory.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrInsufficientInventory),
		errors.Is(err, inventory.ErrAlreadyRolledBack),
		inventory.IsRetryable(err):
		return http.StatusConflict
	case inventory.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with its mapped status. Shortage details are
// attached so a client can show every missing material at once.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var shortage *inventory.ShortageError
	var insufficient *inventory.InsufficientInventoryError
	switch {
	case errors.As(err, &shortage):
		resp.Shortages = toInsufficientDTOs(shortage.Items)
	case errors.As(err, &insufficient):
		resp.Shortages = []InsufficientItemDTO{{
			MaterialID:   string(insufficient.MaterialID),
			MaterialName: insufficient.MaterialName,
			Required:     insufficient.Required,
			Available:    insufficient.Required.Sub(insufficient.Shortfall),
			Unit:         string(insufficient.Unit),
		}}
	}

	if status == http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), message, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}
