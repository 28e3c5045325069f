package fulfillment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
)

// HandlerRegistry maps step types to their handlers
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[workflow.StepType]StepHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[workflow.StepType]StepHandler)}
}

// Register adds a handler. Each step type may be registered once.
func (r *HandlerRegistry) Register(h StepHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := h.Type()
	if !t.IsValid() {
		return shared.NewDomainError(shared.CodeValidation, fmt.Sprintf("unknown step type %q", t))
	}
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("%w: handler for step type '%s' already registered", shared.ErrAlreadyExists, t)
	}
	r.handlers[t] = h
	return nil
}

// MustRegister registers handlers and panics on error
func (r *HandlerRegistry) MustRegister(handlers ...StepHandler) {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Get returns the handler of a step type
func (r *HandlerRegistry) Get(t workflow.StepType) (StepHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[t]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeConfiguration, fmt.Sprintf("no handler registered for step type '%s'", t))
	}
	return h, nil
}

// Types returns the registered step types, sorted
func (r *HandlerRegistry) Types() []workflow.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]workflow.StepType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
