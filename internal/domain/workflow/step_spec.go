package workflow

import (
	"encoding/json"
	"fmt"
)

// StepSpec is one entry of a workflow definition
type StepSpec struct {
	Name     string
	Type     StepType
	Required bool
	Config   StepConfig
}

// NewStepSpec creates a step spec with the default config for its type
func NewStepSpec(name string, stepType StepType, required bool) StepSpec {
	cfg, _ := DefaultStepConfig(stepType)
	return StepSpec{Name: name, Type: stepType, Required: required, Config: cfg}
}

// WithConfig returns a copy of the spec using the given config
func (s StepSpec) WithConfig(cfg StepConfig) StepSpec {
	s.Config = cfg
	return s
}

type stepSpecJSON struct {
	Name     string          `json:"name"`
	Type     StepType        `json:"type"`
	Required *bool           `json:"required,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// MarshalJSON encodes the spec with its tagged config
func (s StepSpec) MarshalJSON() ([]byte, error) {
	required := s.Required
	out := stepSpecJSON{Name: s.Name, Type: s.Type, Required: &required}
	if s.Config != nil {
		raw, err := EncodeStepConfig(s.Config)
		if err != nil {
			return nil, err
		}
		out.Config = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a spec. A missing "required" means true.
func (s *StepSpec) UnmarshalJSON(data []byte) error {
	var in stepSpecJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !in.Type.IsValid() {
		return fmt.Errorf("step %q: unknown step type %q", in.Name, in.Type)
	}
	cfg, err := DecodeStepConfig(in.Type, in.Config)
	if err != nil {
		return fmt.Errorf("step %q: %w", in.Name, err)
	}
	s.Name = in.Name
	s.Type = in.Type
	s.Required = in.Required == nil || *in.Required
	s.Config = cfg
	return nil
}
