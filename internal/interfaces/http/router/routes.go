package router

import (
	"github.com/gin-gonic/gin"
	"github.com/marketplace/fulfillment/internal/interfaces/http/handler"
)

// Handlers are the endpoint handlers of the API. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Orders    *handler.OrderHandler
	Workflows *handler.WorkflowHandler
	Jobs      *handler.JobHandler
	Archives  *handler.ArchiveHandler
	Risk      *handler.RiskHandler
	Transfers *handler.TransferHandler
	Health    *handler.HealthHandler
}

// RouteOptions tunes individual route groups
type RouteOptions struct {
	// ProcessMiddleware runs before order processing only, e.g. a rate limit
	ProcessMiddleware []gin.HandlerFunc
}

// DomainGroups builds the route groups of the API
func DomainGroups(h Handlers, opts RouteOptions) []RouteRegistrar {
	var groups []RouteRegistrar

	if h.Orders != nil {
		orders := NewDomainGroup("orders", "/orders")
		process := append(append([]gin.HandlerFunc{}, opts.ProcessMiddleware...), h.Orders.Process)
		orders.POST("/:order_id/process", process...)
		orders.GET("/:order_id/status", h.Orders.Status)
		groups = append(groups, orders)
	}

	if h.Workflows != nil {
		workflows := NewDomainGroup("workflows", "/workflows")
		workflows.POST("", h.Workflows.Create)
		workflows.GET("", h.Workflows.List)
		workflows.GET("/:id", h.Workflows.Get)
		workflows.POST("/:id/activate", h.Workflows.Activate)
		workflows.POST("/:id/deactivate", h.Workflows.Deactivate)
		groups = append(groups, workflows)
	}

	if h.Jobs != nil {
		groups = append(groups, NewDomainGroup("jobs", "/jobs").GET("/:id", h.Jobs.Get))
	}

	if h.Archives != nil {
		groups = append(groups, NewDomainGroup("executions", "/executions").GET("/:id/archive", h.Archives.Download))
	}

	if h.Risk != nil {
		riskGroup := NewDomainGroup("risk", "/risk")
		assessments := riskGroup.Group("assessments", "/assessments")
		assessments.GET("", h.Risk.List)
		assessments.GET("/:id", h.Risk.Get)
		assessments.POST("/:id/false-positive", h.Risk.MarkFalsePositive)
		assessments.POST("/:id/confirm-fraud", h.Risk.ConfirmFraud)
		groups = append(groups, riskGroup)
	}

	if h.Transfers != nil {
		transfers := NewDomainGroup("transfers", "/transfers")
		transfers.GET("/:id", h.Transfers.Get)
		transfers.POST("/:id/resume", h.Transfers.Resume)
		groups = append(groups, transfers)
	}

	if h.Health != nil {
		groups = append(groups, NewDomainGroup("health", "").GET("/health", h.Health.Check))
	}

	return groups
}
