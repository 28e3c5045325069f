package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/application/fulfillment"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/interfaces/http/dto"
)

// OrderHandler handles order processing endpoints
type OrderHandler struct {
	BaseHandler
	orders *fulfillment.OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders *fulfillment.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// ProcessOrderRequest is the body of POST /orders/:order_id/process
type ProcessOrderRequest struct {
	WorkflowType string              `json:"workflow_type" binding:"required,workflow_type"`
	Order        *workflow.OrderData `json:"order" binding:"required"`
	Async        bool                `json:"async"`
}

// ProcessOrderResponse reports the outcome of a synchronous run
type ProcessOrderResponse struct {
	Success         bool                             `json:"success"`
	WorkflowID      uuid.UUID                        `json:"workflow_id"`
	ExecutionID     uuid.UUID                        `json:"execution_id"`
	ExecutionResult *fulfillment.ExecutionResultView `json:"execution_result"`
}

// Process runs an order through the active workflow of the requested type.
// A run aborted by a required step answers 422 with the execution result.
func (h *OrderHandler) Process(c *gin.Context) {
	orderID := c.Param("order_id")
	if orderID == "" {
		h.BadRequest(c, "order_id is required")
		return
	}
	var req ProcessOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	run := fulfillment.RunRequest{
		OrderID:      orderID,
		WorkflowType: workflow.WorkflowType(req.WorkflowType),
		Order:        req.Order,
	}

	if req.Async {
		job, err := h.orders.SubmitOrder(c.Request.Context(), run)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Accepted(c, job)
		return
	}

	result, err := h.orders.ProcessOrder(c.Request.Context(), run)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := ProcessOrderResponse{
		Success:         result.Success,
		WorkflowID:      result.WorkflowID,
		ExecutionID:     result.ExecutionID,
		ExecutionResult: fulfillment.NewExecutionResultView(result),
	}
	if !result.Success {
		body := dto.NewErrorResponseWithRequestID(dto.ErrCodeStepFailed, result.Error, getRequestID(c))
		body.Data = resp
		c.JSON(http.StatusUnprocessableEntity, body)
		return
	}
	h.Success(c, resp)
}

// Status returns the latest execution of an order with its step log
func (h *OrderHandler) Status(c *gin.Context) {
	status, err := h.orders.GetOrderStatus(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}
