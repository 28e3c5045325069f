package workflow

// WorkflowType identifies a family of fulfillment workflows
type WorkflowType string

const (
	WorkflowTypeSingleVendor WorkflowType = "single_vendor"
	WorkflowTypeMultiVendor  WorkflowType = "multi_vendor"
	WorkflowTypeDropship     WorkflowType = "dropship"
	WorkflowTypeMarketplace  WorkflowType = "marketplace"
)

// AllWorkflowTypes returns every supported workflow type
func AllWorkflowTypes() []WorkflowType {
	return []WorkflowType{
		WorkflowTypeSingleVendor,
		WorkflowTypeMultiVendor,
		WorkflowTypeDropship,
		WorkflowTypeMarketplace,
	}
}

// IsValid checks if the workflow type is known
func (t WorkflowType) IsValid() bool {
	switch t {
	case WorkflowTypeSingleVendor, WorkflowTypeMultiVendor, WorkflowTypeDropship, WorkflowTypeMarketplace:
		return true
	}
	return false
}

// String returns the string representation
func (t WorkflowType) String() string {
	return string(t)
}

// StepType identifies the handler responsible for a step
type StepType string

const (
	StepTypeInventoryCheck       StepType = "inventory_check"
	StepTypeFraudCheck           StepType = "fraud_check"
	StepTypePaymentProcessing    StepType = "payment_processing"
	StepTypeInventoryAllocation  StepType = "inventory_allocation"
	StepTypeOrderSplitting       StepType = "order_splitting"
	StepTypeShippingAssignment   StepType = "shipping_assignment"
	StepTypeVendorNotification   StepType = "vendor_notification"
	StepTypeCustomerNotification StepType = "customer_notification"
	StepTypeAnalyticsTracking    StepType = "analytics_tracking"
)

// AllStepTypes returns every step type that has a handler
func AllStepTypes() []StepType {
	return []StepType{
		StepTypeInventoryCheck,
		StepTypeFraudCheck,
		StepTypePaymentProcessing,
		StepTypeInventoryAllocation,
		StepTypeOrderSplitting,
		StepTypeShippingAssignment,
		StepTypeVendorNotification,
		StepTypeCustomerNotification,
		StepTypeAnalyticsTracking,
	}
}

// IsValid checks if the step type is known
func (t StepType) IsValid() bool {
	for _, known := range AllStepTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the string representation
func (t StepType) String() string {
	return string(t)
}
