package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"github.com/marketplace/fulfillment/internal/domain/inventory"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
)

// requestedQuantities sums item quantities per product, keeping the order
// in which products first appear
func requestedQuantities(items []workflow.OrderItem) ([]string, map[string]int) {
	ids := make([]string, 0, len(items))
	qty := make(map[string]int, len(items))
	for _, item := range items {
		if _, seen := qty[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		qty[item.ProductID] += item.Quantity
	}
	return ids, qty
}

// InventoryCheckHandler verifies that every item can be served from stock
type InventoryCheckHandler struct {
	store inventory.Store
}

// NewInventoryCheckHandler creates an InventoryCheckHandler
func NewInventoryCheckHandler(store inventory.Store) *InventoryCheckHandler {
	return &InventoryCheckHandler{store: store}
}

// Type implements StepHandler
func (h *InventoryCheckHandler) Type() workflow.StepType { return workflow.StepTypeInventoryCheck }

// Handle implements StepHandler
func (h *InventoryCheckHandler) Handle(ctx context.Context, in StepInput) StepResult {
	ids, requested := requestedQuantities(in.Order.Items)
	levels, err := h.store.GetStock(ctx, ids)
	if err != nil {
		return Failed(nil, shared.WrapDomainError(shared.CodeExternalCall, "read stock levels", err))
	}

	out := &workflow.InventoryCheckOutput{AllAvailable: true, Items: make([]workflow.ItemAvailability, 0, len(ids))}
	var short []string
	for _, id := range ids {
		available := 0
		if level, ok := levels[id]; ok {
			available = level.Available()
		}
		item := workflow.ItemAvailability{
			ProductID:  id,
			Requested:  requested[id],
			Available:  available,
			Sufficient: available >= requested[id],
		}
		if !item.Sufficient {
			out.AllAvailable = false
			short = append(short, fmt.Sprintf("%s (requested %d, available %d)", id, item.Requested, item.Available))
		}
		out.Items = append(out.Items, item)
	}

	if !out.AllAvailable {
		return Failed(out, shared.NewDomainError(shared.CodeValidation, "insufficient stock: "+strings.Join(short, ", ")))
	}
	return Succeeded(out)
}

// AllocationHandler reserves stock for every item of the order. Reservations
// are idempotent per order and product, so a rerun reports
// already_reserved instead of reserving twice.
type AllocationHandler struct {
	store inventory.Store
}

// NewAllocationHandler creates an AllocationHandler
func NewAllocationHandler(store inventory.Store) *AllocationHandler {
	return &AllocationHandler{store: store}
}

// Type implements StepHandler
func (h *AllocationHandler) Type() workflow.StepType { return workflow.StepTypeInventoryAllocation }

// Handle implements StepHandler
func (h *AllocationHandler) Handle(ctx context.Context, in StepInput) StepResult {
	ids, requested := requestedQuantities(in.Order.Items)
	out := &workflow.AllocationOutput{Items: make([]workflow.AllocationLine, 0, len(ids))}

	for _, id := range ids {
		status, err := h.store.Reserve(ctx, in.OrderID, id, requested[id])
		if status == inventory.ReservationInsufficient {
			out.Items = append(out.Items, workflow.AllocationLine{ProductID: id, Quantity: requested[id], Status: string(status)})
			return Failed(out, shared.NewDomainError(shared.CodeValidation,
				fmt.Sprintf("insufficient stock to allocate %d of %s", requested[id], id)))
		}
		if err != nil {
			return Failed(out, shared.WrapDomainError(shared.CodeExternalCall, fmt.Sprintf("reserve %s", id), err))
		}
		out.Items = append(out.Items, workflow.AllocationLine{ProductID: id, Quantity: requested[id], Status: string(status)})
	}
	return Succeeded(out)
}
