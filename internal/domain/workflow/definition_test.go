package workflow

import (
	"errors"
	"testing"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflowDefinition(t *testing.T) {
	t.Run("fills default configs", func(t *testing.T) {
		def, err := NewWorkflowDefinition("basic", WorkflowTypeSingleVendor, []StepSpec{
			{Name: "check", Type: StepTypeInventoryCheck, Required: true},
		}, true)
		require.NoError(t, err)

		assert.Equal(t, 1, def.StepCount())
		assert.IsType(t, InventoryCheckConfig{}, def.Steps[0].Config)
		assert.True(t, def.Active)
	})

	t.Run("rejects unknown workflow type", func(t *testing.T) {
		_, err := NewWorkflowDefinition("x", WorkflowType("wholesale"), []StepSpec{
			NewStepSpec("check", StepTypeInventoryCheck, true),
		}, false)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	t.Run("rejects duplicate step names", func(t *testing.T) {
		_, err := NewWorkflowDefinition("x", WorkflowTypeDropship, []StepSpec{
			NewStepSpec("step", StepTypeInventoryCheck, true),
			NewStepSpec("step", StepTypeFraudCheck, true),
		}, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate step name")
	})

	t.Run("rejects mismatched config", func(t *testing.T) {
		_, err := NewWorkflowDefinition("x", WorkflowTypeDropship, []StepSpec{
			{Name: "fraud", Type: StepTypeFraudCheck, Required: true, Config: ShippingConfig{}},
		}, false)
		assert.Error(t, err)
	})

	t.Run("rejects empty step list", func(t *testing.T) {
		_, err := NewWorkflowDefinition("x", WorkflowTypeDropship, nil, false)
		assert.Error(t, err)
	})
}

func TestWorkflowDefinition_Activate(t *testing.T) {
	def, err := NewWorkflowDefinition("x", WorkflowTypeMarketplace, []StepSpec{
		NewStepSpec("split", StepTypeOrderSplitting, true),
	}, false)
	require.NoError(t, err)

	def.Activate()
	assert.True(t, def.Active)
	require.Len(t, def.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeWorkflowActivated, def.GetDomainEvents()[0].EventType())

	def.Activate()
	assert.Len(t, def.GetDomainEvents(), 1)

	def.Deactivate()
	assert.False(t, def.Active)
}

func TestDefaultDefinitions(t *testing.T) {
	defs, err := DefaultDefinitions()
	require.NoError(t, err)
	require.Len(t, defs, len(AllWorkflowTypes()))

	for _, def := range defs {
		assert.True(t, def.Active)
		for _, step := range def.Steps {
			switch step.Type {
			case StepTypeCustomerNotification, StepTypeAnalyticsTracking:
				assert.False(t, step.Required, "%s/%s should be optional", def.WorkflowType, step.Name)
			}
		}
	}
}
