package workflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepSpec_UnmarshalJSON(t *testing.T) {
	t.Run("required defaults to true", func(t *testing.T) {
		var spec StepSpec
		err := json.Unmarshal([]byte(`{"name":"check","type":"inventory_check"}`), &spec)
		require.NoError(t, err)

		assert.True(t, spec.Required)
		assert.Equal(t, StepTypeInventoryCheck, spec.Type)
		assert.IsType(t, InventoryCheckConfig{}, spec.Config)
	})

	t.Run("required false is honoured", func(t *testing.T) {
		var spec StepSpec
		err := json.Unmarshal([]byte(`{"name":"notify","type":"customer_notification","required":false}`), &spec)
		require.NoError(t, err)

		assert.False(t, spec.Required)
		cfg, ok := spec.Config.(NotificationConfig)
		require.True(t, ok)
		assert.Equal(t, StepTypeCustomerNotification, cfg.StepType())
	})

	t.Run("decodes typed config", func(t *testing.T) {
		var spec StepSpec
		err := json.Unmarshal([]byte(`{"name":"fraud","type":"fraud_check","config":{"type":"fraud_check","block_threshold":85,"timeout_ms":1500}}`), &spec)
		require.NoError(t, err)

		cfg, ok := spec.Config.(FraudCheckConfig)
		require.True(t, ok)
		assert.Equal(t, 85, cfg.BlockThreshold)
		assert.Equal(t, 1500*time.Millisecond, cfg.StepTimeout())
	})

	t.Run("rejects config tagged with another type", func(t *testing.T) {
		var spec StepSpec
		err := json.Unmarshal([]byte(`{"name":"fraud","type":"fraud_check","config":{"type":"shipping_assignment"}}`), &spec)
		assert.Error(t, err)
	})

	t.Run("rejects unknown step type", func(t *testing.T) {
		var spec StepSpec
		err := json.Unmarshal([]byte(`{"name":"x","type":"teleport"}`), &spec)
		assert.Error(t, err)
	})

	t.Run("rejects unknown shipping policy", func(t *testing.T) {
		var spec StepSpec
		err := json.Unmarshal([]byte(`{"name":"ship","type":"shipping_assignment","config":{"policy":"by_pigeon"}}`), &spec)
		assert.Error(t, err)
	})
}

func TestStepSpec_RoundTripKeepsTypeTag(t *testing.T) {
	spec := NewStepSpec("ship", StepTypeShippingAssignment, true).
		WithConfig(ShippingConfig{Policy: ShippingPolicyCheapest})

	data, err := json.Marshal(spec)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `{"type":"shipping_assignment","policy":"cheapest"}`, string(raw["config"]))

	var decoded StepSpec
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, spec, decoded)
}

func TestDecodeStepConfig_ValidationKind(t *testing.T) {
	_, err := DecodeStepConfig(StepTypeFraudCheck, json.RawMessage(`{"block_threshold":150}`))
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}
