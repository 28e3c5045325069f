package workflow

// DefaultDefinitions returns the built-in definition for each workflow type.
// Notifications and analytics are optional everywhere.
func DefaultDefinitions() ([]*WorkflowDefinition, error) {
	specs := map[WorkflowType][]StepSpec{
		WorkflowTypeSingleVendor: {
			NewStepSpec("check_inventory", StepTypeInventoryCheck, true),
			NewStepSpec("screen_fraud", StepTypeFraudCheck, true),
			NewStepSpec("process_payment", StepTypePaymentProcessing, true),
			NewStepSpec("allocate_inventory", StepTypeInventoryAllocation, true),
			NewStepSpec("assign_shipping", StepTypeShippingAssignment, true),
			NewStepSpec("notify_customer", StepTypeCustomerNotification, false),
			NewStepSpec("track_analytics", StepTypeAnalyticsTracking, false),
		},
		WorkflowTypeMultiVendor: {
			NewStepSpec("check_inventory", StepTypeInventoryCheck, true),
			NewStepSpec("screen_fraud", StepTypeFraudCheck, true),
			NewStepSpec("process_payment", StepTypePaymentProcessing, true),
			NewStepSpec("allocate_inventory", StepTypeInventoryAllocation, true),
			NewStepSpec("split_order", StepTypeOrderSplitting, true),
			NewStepSpec("assign_shipping", StepTypeShippingAssignment, true),
			NewStepSpec("notify_vendors", StepTypeVendorNotification, false),
			NewStepSpec("notify_customer", StepTypeCustomerNotification, false),
			NewStepSpec("track_analytics", StepTypeAnalyticsTracking, false),
		},
		WorkflowTypeDropship: {
			NewStepSpec("screen_fraud", StepTypeFraudCheck, true),
			NewStepSpec("process_payment", StepTypePaymentProcessing, true),
			NewStepSpec("split_order", StepTypeOrderSplitting, true),
			NewStepSpec("notify_vendors", StepTypeVendorNotification, true),
			NewStepSpec("assign_shipping", StepTypeShippingAssignment, true).
				WithConfig(ShippingConfig{Policy: ShippingPolicyFastest}),
			NewStepSpec("notify_customer", StepTypeCustomerNotification, false),
			NewStepSpec("track_analytics", StepTypeAnalyticsTracking, false),
		},
		WorkflowTypeMarketplace: {
			NewStepSpec("check_inventory", StepTypeInventoryCheck, true),
			NewStepSpec("screen_fraud", StepTypeFraudCheck, true),
			NewStepSpec("process_payment", StepTypePaymentProcessing, true),
			NewStepSpec("allocate_inventory", StepTypeInventoryAllocation, true),
			NewStepSpec("split_order", StepTypeOrderSplitting, true),
			NewStepSpec("assign_shipping", StepTypeShippingAssignment, true),
			NewStepSpec("notify_vendors", StepTypeVendorNotification, false),
			NewStepSpec("notify_customer", StepTypeCustomerNotification, false),
			NewStepSpec("track_analytics", StepTypeAnalyticsTracking, false),
		},
	}

	defs := make([]*WorkflowDefinition, 0, len(specs))
	for _, wt := range AllWorkflowTypes() {
		def, err := NewWorkflowDefinition(string(wt)+"-default", wt, specs[wt], true)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
