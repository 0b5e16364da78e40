package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragcore/internal/pkg/errcode"
	"github.com/xxxsen/ragcore/internal/pkg/response"
	"github.com/xxxsen/ragcore/internal/service"
)

type SourceHandler struct {
	ingest *service.IngestService
}

func NewSourceHandler(ingest *service.IngestService) *SourceHandler {
	return &SourceHandler{ingest: ingest}
}

type ingestSourceRequest struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

func (h *SourceHandler) Ingest(c *gin.Context) {
	var req ingestSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Content == "" {
		response.Error(c, errcode.ErrInvalid, "content required")
		return
	}
	result, err := h.ingest.IngestSource(c.Request.Context(), service.IngestInput{
		SourceID: req.SourceID,
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.ingest.ListSources(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, sources)
}

func (h *SourceHandler) Delete(c *gin.Context) {
	if err := h.ingest.RemoveSource(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
