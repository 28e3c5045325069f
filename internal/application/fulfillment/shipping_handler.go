package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
)

// ShippingHandler assigns a courier to every shipment of the order. When the
// order was split, each vendor group ships separately.
type ShippingHandler struct {
	couriers      []workflow.Courier
	defaultPolicy workflow.ShippingPolicy
	client        provider.Client
	now           func() time.Time
}

// ShippingHandlerOption configures a ShippingHandler
type ShippingHandlerOption func(*ShippingHandler)

// WithTrackingClient books shipments with the courier to obtain tracking
// numbers instead of generating placeholders
func WithTrackingClient(c provider.Client) ShippingHandlerOption {
	return func(h *ShippingHandler) {
		h.client = c
	}
}

// WithShippingClock replaces time.Now for delivery estimates
func WithShippingClock(now func() time.Time) ShippingHandlerOption {
	return func(h *ShippingHandler) {
		h.now = now
	}
}

// NewShippingHandler creates a ShippingHandler
func NewShippingHandler(couriers []workflow.Courier, defaultPolicy workflow.ShippingPolicy, opts ...ShippingHandlerOption) *ShippingHandler {
	if !defaultPolicy.IsValid() {
		defaultPolicy = workflow.ShippingPolicyBestCoverage
	}
	h := &ShippingHandler{
		couriers:      append([]workflow.Courier(nil), couriers...),
		defaultPolicy: defaultPolicy,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Type implements StepHandler
func (h *ShippingHandler) Type() workflow.StepType { return workflow.StepTypeShippingAssignment }

// Handle implements StepHandler
func (h *ShippingHandler) Handle(ctx context.Context, in StepInput) StepResult {
	policy := h.defaultPolicy
	if cfg, ok := in.Config.(workflow.ShippingConfig); ok && cfg.Policy != "" {
		policy = cfg.Policy
	}
	region := in.Order.Shipping.Region
	if region == "" {
		region = in.Order.Shipping.Country
	}

	courier, ok := workflow.SelectCourier(h.couriers, region, policy)
	if !ok {
		return Failed(nil, shared.NewDomainError(shared.CodeValidation,
			fmt.Sprintf("no courier covers region %q", region)))
	}

	vendors := []string{""}
	if groups := in.State.VendorGroups(); len(groups) > 0 {
		vendors = vendors[:0]
		for _, g := range groups {
			vendors = append(vendors, g.VendorID)
		}
	}

	out := &workflow.ShippingOutput{Policy: policy, Region: region, Shipments: make([]workflow.Shipment, 0, len(vendors))}
	now := h.now()
	for i, vendorID := range vendors {
		tracking, err := h.tracking(ctx, in, courier, vendorID, i+1)
		if err != nil {
			return Failed(out, err)
		}
		out.Shipments = append(out.Shipments, workflow.Shipment{
			VendorID:          vendorID,
			Courier:           courier.Name,
			TrackingNumber:    tracking,
			ETADays:           courier.ETADays,
			EstimatedDelivery: now.AddDate(0, 0, courier.ETADays).Truncate(24 * time.Hour),
		})
	}
	return Succeeded(out)
}

func (h *ShippingHandler) tracking(ctx context.Context, in StepInput, courier workflow.Courier, vendorID string, n int) (string, error) {
	placeholder := fmt.Sprintf("%s-%s-%02d", strings.ToUpper(courier.Name), in.OrderID, n)
	if h.client == nil {
		return placeholder, nil
	}
	key := in.OrderID + ":" + in.StepName
	if vendorID != "" {
		key += ":" + vendorID
	}
	resp, err := provider.Do(ctx, h.client, provider.Request{
		Provider:       courier.Name,
		Operation:      provider.OperationTrack,
		IdempotencyKey: key,
		Account:        placeholder,
		Metadata:       map[string]string{"order_id": in.OrderID, "vendor_id": vendorID, "region": in.Order.Shipping.Region},
	})
	if err != nil {
		return "", err
	}
	return resp.Reference, nil
}

