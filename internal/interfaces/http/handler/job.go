package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/marketplace/fulfillment/internal/application/fulfillment"
)

// JobHandler exposes background job state
type JobHandler struct {
	BaseHandler
	jobs *fulfillment.JobService
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobs *fulfillment.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Get returns a job snapshot
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	job, err := h.jobs.GetJob(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}
