package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	archiver := newTestHandler()
	audit := newTestHandler()

	r.Register(archiver, "workflow.execution.finished", "job.completed")
	r.Register(audit)

	assert.Len(t, r.GetHandlers("workflow.execution.finished"), 2)
	assert.Len(t, r.GetHandlers("job.completed"), 2)
	assert.Len(t, r.GetHandlers("wallet.transfer.finished"), 1)
	assert.Equal(t, map[string]int{
		"workflow.execution.finished": 1,
		"job.completed":               1,
		"*":                           1,
	}, r.Subscriptions())

	t.Run("type specific handlers come first", func(t *testing.T) {
		handlers := r.GetHandlers("workflow.execution.finished")
		assert.Same(t, archiver, handlers[0])
		assert.Same(t, audit, handlers[1])
	})

	t.Run("registering twice keeps one subscription", func(t *testing.T) {
		r.Register(archiver, "workflow.execution.finished")
		r.Register(audit)
		assert.Len(t, r.GetHandlers("workflow.execution.finished"), 2)
		assert.Equal(t, 1, r.Subscriptions()["*"])
	})

	t.Run("unregister removes from every type", func(t *testing.T) {
		r.Unregister(archiver)
		assert.Len(t, r.GetHandlers("workflow.execution.finished"), 1)
		assert.Len(t, r.GetHandlers("job.completed"), 1)
		assert.Equal(t, map[string]int{"*": 1}, r.Subscriptions())
	})
}

func TestInMemoryEventBus_ResubscribeDeliversOnce(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("workflow.execution.finished")
	bus.Subscribe(h)
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("workflow.execution.finished")))
	assert.Equal(t, 1, h.count())
}
