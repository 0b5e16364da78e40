package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragcore/internal/pkg/errcode"
	"github.com/xxxsen/ragcore/internal/pkg/response"
	"github.com/xxxsen/ragcore/internal/service"
)

type QueryHandler struct {
	queries *service.QueryService
}

func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type submitQueryRequest struct {
	Query               string   `json:"query"`
	MaxResults          *int     `json:"max_results"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

type retrievedChunkItem struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

type submitQueryResponse struct {
	QueryID       string               `json:"query_id"`
	Answer        string               `json:"answer"`
	PolicyVersion int64                `json:"policy_version"`
	Retrieved     []retrievedChunkItem `json:"retrieved"`
	ContextChunks []string             `json:"context_chunks"`
}

func (h *QueryHandler) Submit(c *gin.Context) {
	var req submitQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.queries.SubmitQuery(c.Request.Context(), service.QueryInput{
		Text:                req.Query,
		MaxResults:          req.MaxResults,
		SimilarityThreshold: req.SimilarityThreshold,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]retrievedChunkItem, 0, len(result.Retrieved))
	for _, item := range result.Retrieved {
		items = append(items, retrievedChunkItem{
			ChunkID: item.ChunkID,
			Score:   item.Score,
			Rank:    item.Rank,
		})
	}
	response.Success(c, submitQueryResponse{
		QueryID:       result.Query.ID,
		Answer:        result.Response.Content,
		PolicyVersion: result.Query.PolicyVersion,
		Retrieved:     items,
		ContextChunks: result.Response.ContextChunkIDs,
	})
}

func (h *QueryHandler) Get(c *gin.Context) {
	result, err := h.queries.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]retrievedChunkItem, 0, len(result.Retrieved))
	for _, item := range result.Retrieved {
		items = append(items, retrievedChunkItem{
			ChunkID: item.ChunkID,
			Score:   item.Score,
			Rank:    item.Rank,
		})
	}
	response.Success(c, submitQueryResponse{
		QueryID:       result.Query.ID,
		Answer:        result.Response.Content,
		PolicyVersion: result.Query.PolicyVersion,
		Retrieved:     items,
		ContextChunks: result.Response.ContextChunkIDs,
	})
}
