package fulfillment

import (
	"context"

	"github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
)

// Default side-effect providers
const (
	DefaultNotifyProvider  = "notifier"
	DefaultAnalyticsTarget = "analytics"
	DefaultAnalyticsEvent  = "order_fulfilled"
)

// NotificationHandler sends vendor or customer notifications. Each call is
// keyed by order, step and recipient so retries never notify twice.
type NotificationHandler struct {
	kind            workflow.StepType
	client          provider.Client
	defaultProvider string
}

// NewVendorNotificationHandler notifies every vendor with items in the order
func NewVendorNotificationHandler(client provider.Client, defaultProvider string) *NotificationHandler {
	return newNotificationHandler(workflow.StepTypeVendorNotification, client, defaultProvider)
}

// NewCustomerNotificationHandler notifies the customer
func NewCustomerNotificationHandler(client provider.Client, defaultProvider string) *NotificationHandler {
	return newNotificationHandler(workflow.StepTypeCustomerNotification, client, defaultProvider)
}

func newNotificationHandler(kind workflow.StepType, client provider.Client, defaultProvider string) *NotificationHandler {
	if defaultProvider == "" {
		defaultProvider = DefaultNotifyProvider
	}
	return &NotificationHandler{kind: kind, client: client, defaultProvider: defaultProvider}
}

// Type implements StepHandler
func (h *NotificationHandler) Type() workflow.StepType { return h.kind }

// Handle implements StepHandler
func (h *NotificationHandler) Handle(ctx context.Context, in StepInput) StepResult {
	cfg, _ := in.Config.(workflow.NotificationConfig)
	out := &workflow.NotificationOutput{Provider: h.defaultProvider}
	if cfg.Provider != "" {
		out.Provider = cfg.Provider
	}

	for _, recipient := range h.recipients(in) {
		key := in.OrderID + ":" + in.StepName
		if h.kind == workflow.StepTypeVendorNotification {
			key += ":" + recipient
		}
		resp, err := provider.Do(ctx, h.client, provider.Request{
			Provider:       out.Provider,
			Operation:      provider.OperationNotify,
			IdempotencyKey: key,
			Account:        recipient,
			Metadata: map[string]string{
				"order_id": in.OrderID,
				"channel":  cfg.Channel,
				"template": cfg.Template,
				"kind":     string(h.kind),
			},
		})
		if err != nil {
			return Failed(out, err)
		}
		out.Recipients = append(out.Recipients, recipient)
		out.References = append(out.References, resp.Reference)
	}
	return Succeeded(out)
}

func (h *NotificationHandler) recipients(in StepInput) []string {
	if h.kind == workflow.StepTypeCustomerNotification {
		return []string{in.Order.CustomerID}
	}
	if groups := in.State.VendorGroups(); len(groups) > 0 {
		vendors := make([]string, 0, len(groups))
		for _, g := range groups {
			vendors = append(vendors, g.VendorID)
		}
		return vendors
	}
	groups := SplitByVendor(in.Order.Items)
	vendors := make([]string, 0, len(groups))
	for _, g := range groups {
		vendors = append(vendors, g.VendorID)
	}
	return vendors
}

// AnalyticsHandler records the fulfilled order with the analytics sink
type AnalyticsHandler struct {
	client        provider.Client
	defaultTarget string
}

// NewAnalyticsHandler creates an AnalyticsHandler
func NewAnalyticsHandler(client provider.Client, defaultTarget string) *AnalyticsHandler {
	if defaultTarget == "" {
		defaultTarget = DefaultAnalyticsTarget
	}
	return &AnalyticsHandler{client: client, defaultTarget: defaultTarget}
}

// Type implements StepHandler
func (h *AnalyticsHandler) Type() workflow.StepType { return workflow.StepTypeAnalyticsTracking }

// Handle implements StepHandler
func (h *AnalyticsHandler) Handle(ctx context.Context, in StepInput) StepResult {
	cfg, _ := in.Config.(workflow.AnalyticsConfig)
	out := &workflow.AnalyticsOutput{Provider: h.defaultTarget, EventName: DefaultAnalyticsEvent}
	if cfg.Provider != "" {
		out.Provider = cfg.Provider
	}
	if cfg.EventName != "" {
		out.EventName = cfg.EventName
	}

	metadata := map[string]string{
		"order_id":    in.OrderID,
		"event":       out.EventName,
		"customer_id": in.Order.CustomerID,
	}
	for k, v := range in.Order.Annotations {
		metadata[k] = v
	}
	resp, err := provider.Do(ctx, h.client, provider.Request{
		Provider:       out.Provider,
		Operation:      provider.OperationTrack,
		IdempotencyKey: in.OrderID + ":" + in.StepName,
		Account:        in.Order.CustomerID,
		Amount:         in.Order.Subtotal,
		Currency:       in.Order.Currency,
		Metadata:       metadata,
	})
	if err != nil {
		return Failed(out, err)
	}
	out.Reference = resp.Reference
	return Succeeded(out)
}
