package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragcore/internal/pkg/errcode"
	"github.com/xxxsen/ragcore/internal/pkg/response"
	"github.com/xxxsen/ragcore/internal/service"
)

type FeedbackHandler struct {
	feedback *service.FeedbackService
}

func NewFeedbackHandler(feedback *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

type recordFeedbackRequest struct {
	QueryID string `json:"query_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *FeedbackHandler) Record(c *gin.Context) {
	var req recordFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.QueryID == "" {
		response.Error(c, errcode.ErrInvalid, "query_id required")
		return
	}
	fb, err := h.feedback.Record(c.Request.Context(), req.QueryID, req.Rating, req.Comment)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, fb)
}

func (h *FeedbackHandler) Statistics(c *gin.Context) {
	var policyVersion *int64
	if raw := c.Query("policy_version"); raw != "" {
		version, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid policy_version")
			return
		}
		policyVersion = &version
	}
	response.Success(c, h.feedback.Statistics(policyVersion))
}
