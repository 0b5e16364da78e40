package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragcore/internal/pkg/response"
	"github.com/xxxsen/ragcore/internal/service"
)

type IndexHandler struct {
	idx service.VectorIndex
}

func NewIndexHandler(idx service.VectorIndex) *IndexHandler {
	return &IndexHandler{idx: idx}
}

// Rebuild forces a compaction out of schedule.
func (h *IndexHandler) Rebuild(c *gin.Context) {
	if err := h.idx.Rebuild(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"live_vectors": h.idx.LiveCount()})
}
