package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragcore/internal/pkg/errcode"
	"github.com/xxxsen/ragcore/internal/pkg/response"
	"github.com/xxxsen/ragcore/internal/service"
)

type PolicyHandler struct {
	policies *service.PolicyService
}

func NewPolicyHandler(policies *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

func (h *PolicyHandler) Current(c *gin.Context) {
	pv, err := h.policies.Current(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pv)
}

func (h *PolicyHandler) Get(c *gin.Context) {
	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid version")
		return
	}
	pv, err := h.policies.GetByVersion(c.Request.Context(), version)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pv)
}

func (h *PolicyHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.policies.List(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

// Reinforce triggers one learning step out of schedule.
func (h *PolicyHandler) Reinforce(c *gin.Context) {
	pv, published, err := h.policies.Reinforce(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"published": published,
		"policy":    pv,
	})
}
