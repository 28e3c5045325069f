package fulfillment

import (
	"context"
	"fmt"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// SplittingHandler groups order items into one sub-order per vendor
type SplittingHandler struct{}

// NewSplittingHandler creates a SplittingHandler
func NewSplittingHandler() *SplittingHandler {
	return &SplittingHandler{}
}

// Type implements StepHandler
func (h *SplittingHandler) Type() workflow.StepType { return workflow.StepTypeOrderSplitting }

// Handle implements StepHandler
func (h *SplittingHandler) Handle(_ context.Context, in StepInput) StepResult {
	out := &workflow.SplitOutput{Groups: SplitByVendor(in.Order.Items)}
	out.SplitRequired = len(out.Groups) > 1

	total := decimal.Zero
	for _, g := range out.Groups {
		total = total.Add(g.Subtotal)
	}
	if !total.Equal(in.Order.Subtotal) {
		return Failed(out, shared.NewDomainError(shared.CodeComputation,
			fmt.Sprintf("vendor subtotals %s do not add up to order subtotal %s", total.StringFixed(2), in.Order.Subtotal.StringFixed(2))))
	}
	return Succeeded(out)
}

// SplitByVendor groups items by vendor in order of first appearance
func SplitByVendor(items []workflow.OrderItem) []workflow.VendorGroup {
	index := make(map[string]int)
	groups := make([]workflow.VendorGroup, 0)
	for _, item := range items {
		i, ok := index[item.VendorID]
		if !ok {
			i = len(groups)
			index[item.VendorID] = i
			groups = append(groups, workflow.VendorGroup{VendorID: item.VendorID, Subtotal: decimal.Zero})
		}
		groups[i].Items = append(groups[i].Items, item)
		groups[i].Subtotal = groups[i].Subtotal.Add(item.LineTotal())
	}
	return groups
}
