/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the inventory domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

QUANTITIES:
  decimal.Decimal marshals as a JSON string ("7.5") and accepts either a
  string or a number on input, so no float64 ever touches a quantity.

TIMESTAMPS:
  RFC3339Nano, UTC.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/batch-stock/inventory"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ConsumptionRequestDTO is one material line, in requests and responses.
type ConsumptionRequestDTO struct {
	MaterialID string          `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
}

type RequirementsRequest struct {
	TargetQuantity decimal.Decimal `json:"target_quantity"`
}

type AvailabilityRequest struct {
	Requests []ConsumptionRequestDTO `json:"requests"`
}

type StartBatchRequest struct {
	RecipeID       string          `json:"recipe_id"`
	TargetQuantity decimal.Decimal `json:"target_quantity"`
	ActorID        string          `json:"actor_id"`
}

type DeductRequest struct {
	Requests []ConsumptionRequestDTO `json:"requests"`
	ActorID  string                  `json:"actor_id"`
}

type RollbackRequest struct {
	ActorID string `json:"actor_id"`
}

type LoadScenarioRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type RequirementsResponse struct {
	RecipeID       string                  `json:"recipe_id"`
	TargetQuantity decimal.Decimal         `json:"target_quantity"`
	Requests       []ConsumptionRequestDTO `json:"requests"`
}

type InsufficientItemDTO struct {
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	Required     decimal.Decimal `json:"required"`
	Available    decimal.Decimal `json:"available"`
	Unit         string          `json:"unit"`
}

type AvailabilityResponse struct {
	OK           bool                  `json:"ok"`
	Insufficient []InsufficientItemDTO `json:"insufficient"`
}

type LotDeductionDTO struct {
	LotID            string          `json:"lot_id"`
	MaterialID       string          `json:"material_id"`
	QuantityBefore   decimal.Decimal `json:"quantity_before"`
	QuantityDeducted decimal.Decimal `json:"quantity_deducted"`
	QuantityAfter    decimal.Decimal `json:"quantity_after"`
	Unit             string          `json:"unit"`
}

type DeductionResponse struct {
	BatchID    string            `json:"batch_id"`
	Deductions []LotDeductionDTO `json:"deductions"`
}

type LotRestorationDTO struct {
	LotID            string          `json:"lot_id"`
	MaterialID       string          `json:"material_id"`
	QuantityRestored decimal.Decimal `json:"quantity_restored"`
	QuantityAfter    decimal.Decimal `json:"quantity_after"`
	Unit             string          `json:"unit"`
}

type RollbackResponse struct {
	BatchID  string              `json:"batch_id"`
	Restored []LotRestorationDTO `json:"restored"`
}

type AuditEntryDTO struct {
	ID              string          `json:"id"`
	Action          string          `json:"action"`
	LotID           string          `json:"lot_id"`
	MaterialID      string          `json:"material_id"`
	BatchID         string          `json:"batch_id"`
	ActorID         string          `json:"actor_id"`
	QuantityBefore  decimal.Decimal `json:"quantity_before"`
	QuantityAfter   decimal.Decimal `json:"quantity_after"`
	Delta           decimal.Decimal `json:"delta"`
	Unit            string          `json:"unit"`
	Reason          string          `json:"reason"`
	ReversesEntryID string          `json:"reverses_entry_id,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

type LotDTO struct {
	ID         string          `json:"id"`
	MaterialID string          `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CreatedAt  string          `json:"created_at"`
	Version    int64           `json:"version"`
}

type MaterialLotsResponse struct {
	MaterialID string          `json:"material_id"`
	Name       string          `json:"name"`
	Unit       string          `json:"unit"`
	Available  decimal.Decimal `json:"available"`
	Lots       []LotDTO        `json:"lots"`
}

type ScenarioDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response. Shortages is set
// when a batch was refused for lack of stock.
type ErrorResponse struct {
	Error     string                `json:"error"`
	Details   string                `json:"details,omitempty"`
	Shortages []InsufficientItemDTO `json:"shortages,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toDomainRequests(dtos []ConsumptionRequestDTO) []inventory.ConsumptionRequest {
	out := make([]inventory.ConsumptionRequest, len(dtos))
	for i, d := range dtos {
		out[i] = inventory.ConsumptionRequest{
			MaterialID: inventory.MaterialID(d.MaterialID),
			Quantity:   d.Quantity,
			Unit:       inventory.Unit(d.Unit),
		}
	}
	return out
}

func toRequestDTOs(reqs []inventory.ConsumptionRequest) []ConsumptionRequestDTO {
	out := make([]ConsumptionRequestDTO, len(reqs))
	for i, r := range reqs {
		out[i] = ConsumptionRequestDTO{
			MaterialID: string(r.MaterialID),
			Quantity:   r.Quantity,
			Unit:       string(r.Unit),
		}
	}
	return out
}

func toInsufficientDTOs(items []inventory.InsufficientItem) []InsufficientItemDTO {
	out := make([]InsufficientItemDTO, len(items))
	for i, item := range items {
		out[i] = InsufficientItemDTO{
			MaterialID:   string(item.MaterialID),
			MaterialName: item.MaterialName,
			Required:     item.Required,
			Available:    item.Available,
			Unit:         string(item.Unit),
		}
	}
	return out
}

func toDeductionResponse(r *inventory.DeductionResult) DeductionResponse {
	resp := DeductionResponse{
		BatchID:    string(r.BatchID),
		Deductions: make([]LotDeductionDTO, len(r.Deductions)),
	}
	for i, d := range r.Deductions {
		resp.Deductions[i] = LotDeductionDTO{
			LotID:            string(d.LotID),
			MaterialID:       string(d.MaterialID),
			QuantityBefore:   d.QuantityBefore,
			QuantityDeducted: d.QuantityDeducted,
			QuantityAfter:    d.QuantityAfter,
			Unit:             string(d.Unit),
		}
	}
	return resp
}

// NewRollbackResponse converts a rollback result to its JSON form.
func NewRollbackResponse(r *inventory.RollbackResult) RollbackResponse {
	resp := RollbackResponse{
		BatchID:  string(r.BatchID),
		Restored: make([]LotRestorationDTO, len(r.Restored)),
	}
	for i, rs := range r.Restored {
		resp.Restored[i] = LotRestorationDTO{
			LotID:            string(rs.LotID),
			MaterialID:       string(rs.MaterialID),
			QuantityRestored: rs.QuantityRestored,
			QuantityAfter:    rs.QuantityAfter,
			Unit:             string(rs.Unit),
		}
	}
	return resp
}

func toAuditDTO(e inventory.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:              string(e.ID),
		Action:          string(e.Action),
		LotID:           string(e.LotID),
		MaterialID:      string(e.Before.MaterialID),
		BatchID:         string(e.Before.BatchID),
		ActorID:         string(e.ActorID),
		QuantityBefore:  e.Before.Quantity,
		QuantityAfter:   e.After.Quantity,
		Delta:           e.After.Delta,
		Unit:            string(e.After.Unit),
		Reason:          e.After.Reason,
		ReversesEntryID: string(e.ReversesEntryID),
		CreatedAt:       e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toLotDTO(l inventory.StockLot) LotDTO {
	return LotDTO{
		ID:         string(l.ID),
		MaterialID: string(l.MaterialID),
		Quantity:   l.Quantity,
		UnitPrice:  l.UnitPrice,
		CreatedAt:  l.CreatedAt.UTC().Format(time.RFC3339Nano),
		Version:    l.Version,
	}
}
