package workflow

// RunState carries step outputs forward through a single execution so that
// later steps can read what earlier steps produced.
type RunState struct {
	Outputs    map[string]any
	Inventory  *InventoryCheckOutput
	Risk       *FraudCheckOutput
	Payment    *PaymentOutput
	Allocation *AllocationOutput
	Split      *SplitOutput
	Shipping   *ShippingOutput
}

// NewRunState creates an empty run state
func NewRunState() *RunState {
	return &RunState{Outputs: make(map[string]any)}
}

// Record stores a step output under its step name and by kind
func (s *RunState) Record(stepName string, output any) {
	if output == nil {
		return
	}
	s.Outputs[stepName] = output
	switch o := output.(type) {
	case *InventoryCheckOutput:
		s.Inventory = o
	case *FraudCheckOutput:
		s.Risk = o
	case *PaymentOutput:
		s.Payment = o
	case *AllocationOutput:
		s.Allocation = o
	case *SplitOutput:
		s.Split = o
	case *ShippingOutput:
		s.Shipping = o
	}
}

// VendorGroups returns the split groups, or nil when no split happened
func (s *RunState) VendorGroups() []VendorGroup {
	if s.Split == nil || !s.Split.SplitRequired {
		return nil
	}
	return s.Split.Groups
}

// Snapshot returns a copy that later Record calls do not affect
func (s *RunState) Snapshot() *RunState {
	c := *s
	c.Outputs = make(map[string]any, len(s.Outputs))
	for k, v := range s.Outputs {
		c.Outputs[k] = v
	}
	return &c
}
