package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/application/fulfillment"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
)

// WorkflowHandler handles workflow definition endpoints
type WorkflowHandler struct {
	BaseHandler
	workflows *fulfillment.WorkflowService
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(workflows *fulfillment.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows}
}

// CreateWorkflowRequest is the body of POST /workflows
type CreateWorkflowRequest struct {
	Name         string              `json:"name" binding:"required,min=1,max=200"`
	WorkflowType string              `json:"workflow_type" binding:"required,workflow_type"`
	Steps        []workflow.StepSpec `json:"steps" binding:"required,min=1"`
	Active       bool                `json:"active"`
}

// ListWorkflowsQuery filters GET /workflows
type ListWorkflowsQuery struct {
	WorkflowType string `form:"workflow_type" binding:"omitempty,workflow_type"`
	Active       *bool  `form:"active"`
}

// WorkflowResponse is the response form of a workflow definition
type WorkflowResponse struct {
	ID           uuid.UUID             `json:"id"`
	Name         string                `json:"name"`
	WorkflowType workflow.WorkflowType `json:"workflow_type"`
	Steps        []workflow.StepSpec   `json:"steps"`
	Active       bool                  `json:"active"`
	Version      int                   `json:"version"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// ToWorkflowResponse converts a definition
func ToWorkflowResponse(def *workflow.WorkflowDefinition) WorkflowResponse {
	return WorkflowResponse{
		ID:           def.ID,
		Name:         def.Name,
		WorkflowType: def.WorkflowType,
		Steps:        def.Steps,
		Active:       def.Active,
		Version:      def.Version,
		CreatedAt:    def.CreatedAt,
		UpdatedAt:    def.UpdatedAt,
	}
}

// Create registers a workflow definition
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req CreateWorkflowRequest
	if !h.bindJSON(c, &req) {
		return
	}
	def, err := h.workflows.CreateWorkflow(c.Request.Context(), fulfillment.CreateWorkflowCommand{
		Name:         req.Name,
		WorkflowType: workflow.WorkflowType(req.WorkflowType),
		Steps:        req.Steps,
		Active:       req.Active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ToWorkflowResponse(def))
}

// List returns definitions, optionally filtered by type and active flag
func (h *WorkflowHandler) List(c *gin.Context) {
	var q ListWorkflowsQuery
	if !h.bindQuery(c, &q) {
		return
	}
	defs, err := h.workflows.ListWorkflows(c.Request.Context(), workflow.DefinitionFilter{
		WorkflowType: workflow.WorkflowType(q.WorkflowType),
		Active:       q.Active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]WorkflowResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, ToWorkflowResponse(def))
	}
	h.Success(c, out)
}

// Get returns one definition
func (h *WorkflowHandler) Get(c *gin.Context) {
	h.withDefinition(c, h.workflows.GetWorkflow)
}

// Activate makes a definition the active one of its type
func (h *WorkflowHandler) Activate(c *gin.Context) {
	h.withDefinition(c, h.workflows.ActivateWorkflow)
}

// Deactivate takes a definition out of service
func (h *WorkflowHandler) Deactivate(c *gin.Context) {
	h.withDefinition(c, h.workflows.DeactivateWorkflow)
}

func (h *WorkflowHandler) withDefinition(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*workflow.WorkflowDefinition, error)) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	def, err := op(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToWorkflowResponse(def))
}
