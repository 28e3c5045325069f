package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/marketplace/fulfillment/internal/application/fulfillment"
)

// ArchiveHandler serves links to archived executions
type ArchiveHandler struct {
	BaseHandler
	archiver *fulfillment.ExecutionArchiver
}

// NewArchiveHandler creates a new ArchiveHandler
func NewArchiveHandler(archiver *fulfillment.ExecutionArchiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver}
}

// Download returns a presigned link to the archive of an execution
func (h *ArchiveHandler) Download(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	link, err := h.archiver.DownloadURL(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, link)
}
