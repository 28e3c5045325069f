package workflow

import (
	"testing"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecution(t *testing.T) *WorkflowExecution {
	t.Helper()
	def, err := NewWorkflowDefinition("x", WorkflowTypeSingleVendor, []StepSpec{
		NewStepSpec("check", StepTypeInventoryCheck, true),
		NewStepSpec("notify", StepTypeCustomerNotification, false),
	}, true)
	require.NoError(t, err)
	return NewWorkflowExecution("ORD-1", def, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
}

func TestWorkflowExecution_Complete(t *testing.T) {
	exec := newTestExecution(t)
	assert.Equal(t, ExecutionStatusRunning, exec.Status)
	assert.Equal(t, 2, exec.TotalSteps)

	require.NoError(t, exec.RecordStepCompleted())
	end := exec.StartedAt.Add(3 * time.Second)
	require.NoError(t, exec.Complete(end))

	assert.Equal(t, ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, 3*time.Second, exec.Duration())
	require.Len(t, exec.GetDomainEvents(), 1)

	event, ok := exec.GetDomainEvents()[0].(*ExecutionFinishedEvent)
	require.True(t, ok)
	assert.Equal(t, "ORD-1", event.OrderID)
	assert.Equal(t, ExecutionStatusCompleted, event.Status)
}

func TestWorkflowExecution_Fail(t *testing.T) {
	exec := newTestExecution(t)
	require.NoError(t, exec.Fail("check", shared.KindTimedOut, "deadline exceeded", exec.StartedAt))

	assert.Equal(t, ExecutionStatusFailed, exec.Status)
	assert.Equal(t, "check", exec.FailedStep)
	assert.Equal(t, shared.KindTimedOut, exec.ErrorKind)
}

func TestWorkflowExecution_TerminalIsFrozen(t *testing.T) {
	exec := newTestExecution(t)
	require.NoError(t, exec.Complete(exec.StartedAt))

	assert.ErrorIs(t, exec.Fail("check", shared.KindComputation, "boom", exec.StartedAt), shared.ErrInvalidState)
	assert.ErrorIs(t, exec.Complete(exec.StartedAt), shared.ErrInvalidState)
	assert.ErrorIs(t, exec.RecordStepCompleted(), shared.ErrInvalidState)
}
