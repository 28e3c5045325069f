package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// StepConfig is the typed configuration of a single step. The concrete type
// is selected by the step type; on the wire it is an object carrying a
// "type" discriminator next to the config fields.
type StepConfig interface {
	StepType() StepType
	// StepTimeout returns the per-step timeout override, zero when unset
	StepTimeout() time.Duration
}

// Timeout holds the optional per-step timeout shared by every config
type Timeout struct {
	TimeoutMS int64 `json:"timeout_ms,omitempty"`
}

// StepTimeout returns the configured timeout
func (t Timeout) StepTimeout() time.Duration {
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

// InventoryCheckConfig configures the inventory_check step
type InventoryCheckConfig struct {
	Timeout
}

// StepType implements StepConfig
func (InventoryCheckConfig) StepType() StepType { return StepTypeInventoryCheck }

// FraudCheckConfig configures the fraud_check step.
// BlockThreshold of zero falls back to the service default.
type FraudCheckConfig struct {
	Timeout
	BlockThreshold int `json:"block_threshold,omitempty"`
}

// StepType implements StepConfig
func (FraudCheckConfig) StepType() StepType { return StepTypeFraudCheck }

// PaymentConfig configures the payment_processing step
type PaymentConfig struct {
	Timeout
	// CardProvider is the provider used for card charges
	CardProvider string `json:"card_provider,omitempty"`
}

// StepType implements StepConfig
func (PaymentConfig) StepType() StepType { return StepTypePaymentProcessing }

// AllocationConfig configures the inventory_allocation step
type AllocationConfig struct {
	Timeout
}

// StepType implements StepConfig
func (AllocationConfig) StepType() StepType { return StepTypeInventoryAllocation }

// SplittingConfig configures the order_splitting step
type SplittingConfig struct {
	Timeout
}

// StepType implements StepConfig
func (SplittingConfig) StepType() StepType { return StepTypeOrderSplitting }

// ShippingConfig configures the shipping_assignment step.
// An empty policy falls back to the service default.
type ShippingConfig struct {
	Timeout
	Policy ShippingPolicy `json:"policy,omitempty"`
}

// StepType implements StepConfig
func (ShippingConfig) StepType() StepType { return StepTypeShippingAssignment }

// NotificationConfig configures vendor_notification and customer_notification
type NotificationConfig struct {
	Timeout
	Kind     StepType `json:"-"`
	Provider string   `json:"provider,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Template string   `json:"template,omitempty"`
}

// StepType implements StepConfig
func (c NotificationConfig) StepType() StepType { return c.Kind }

// AnalyticsConfig configures the analytics_tracking step
type AnalyticsConfig struct {
	Timeout
	Provider  string `json:"provider,omitempty"`
	EventName string `json:"event_name,omitempty"`
}

// StepType implements StepConfig
func (AnalyticsConfig) StepType() StepType { return StepTypeAnalyticsTracking }

// DefaultStepConfig returns the zero configuration for a step type
func DefaultStepConfig(stepType StepType) (StepConfig, error) {
	switch stepType {
	case StepTypeInventoryCheck:
		return InventoryCheckConfig{}, nil
	case StepTypeFraudCheck:
		return FraudCheckConfig{}, nil
	case StepTypePaymentProcessing:
		return PaymentConfig{}, nil
	case StepTypeInventoryAllocation:
		return AllocationConfig{}, nil
	case StepTypeOrderSplitting:
		return SplittingConfig{}, nil
	case StepTypeShippingAssignment:
		return ShippingConfig{}, nil
	case StepTypeVendorNotification, StepTypeCustomerNotification:
		return NotificationConfig{Kind: stepType}, nil
	case StepTypeAnalyticsTracking:
		return AnalyticsConfig{}, nil
	}
	return nil, shared.NewDomainError(shared.CodeValidation, fmt.Sprintf("unknown step type %q", stepType))
}

// DecodeStepConfig decodes a raw config object for the given step type.
// Empty or null input yields the default config. A "type" field that
// disagrees with the step type is rejected.
func DecodeStepConfig(stepType StepType, raw json.RawMessage) (StepConfig, error) {
	cfg, err := DefaultStepConfig(stepType)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}

	var envelope struct {
		Type StepType `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, shared.WrapDomainError(shared.CodeValidation, fmt.Sprintf("invalid config for step type %s", stepType), err)
	}
	if envelope.Type != "" && envelope.Type != stepType {
		return nil, shared.NewDomainError(shared.CodeValidation,
			fmt.Sprintf("config type %q does not match step type %q", envelope.Type, stepType))
	}

	var decodeErr error
	switch c := cfg.(type) {
	case InventoryCheckConfig:
		decodeErr = json.Unmarshal(raw, &c)
		cfg = c
	case FraudCheckConfig:
		decodeErr = json.Unmarshal(raw, &c)
		if decodeErr == nil && (c.BlockThreshold < 0 || c.BlockThreshold > 100) {
			decodeErr = fmt.Errorf("block_threshold must be within [0,100]")
		}
		cfg = c
	case PaymentConfig:
		decodeErr = json.Unmarshal(raw, &c)
		cfg = c
	case AllocationConfig:
		decodeErr = json.Unmarshal(raw, &c)
		cfg = c
	case SplittingConfig:
		decodeErr = json.Unmarshal(raw, &c)
		cfg = c
	case ShippingConfig:
		decodeErr = json.Unmarshal(raw, &c)
		if decodeErr == nil && c.Policy != "" && !c.Policy.IsValid() {
			decodeErr = fmt.Errorf("unknown shipping policy %q", c.Policy)
		}
		cfg = c
	case NotificationConfig:
		decodeErr = json.Unmarshal(raw, &c)
		c.Kind = stepType
		cfg = c
	case AnalyticsConfig:
		decodeErr = json.Unmarshal(raw, &c)
		cfg = c
	}
	if decodeErr != nil {
		return nil, shared.WrapDomainError(shared.CodeValidation, fmt.Sprintf("invalid config for step type %s", stepType), decodeErr)
	}
	if cfg.StepTimeout() < 0 {
		return nil, shared.NewDomainError(shared.CodeValidation, "timeout_ms must not be negative")
	}
	return cfg, nil
}

// EncodeStepConfig encodes a config into its tagged JSON form
func EncodeStepConfig(cfg StepConfig) (json.RawMessage, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(cfg.StepType())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}
