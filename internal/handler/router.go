package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragcore/internal/middleware"
)

type RouterDeps struct {
	Queries       *QueryHandler
	Feedback      *FeedbackHandler
	Policies      *PolicyHandler
	Sources       *SourceHandler
	Index         *IndexHandler
	JWTSecret     []byte
	RateLimitStep time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	public := api.Group("")
	if deps.RateLimitStep > 0 {
		public.Use(middleware.RateLimit(deps.RateLimitStep))
	}
	public.POST("/queries", deps.Queries.Submit)
	public.GET("/queries/:id", deps.Queries.Get)
	public.POST("/feedback", deps.Feedback.Record)
	public.GET("/feedback/statistics", deps.Feedback.Statistics)
	public.GET("/policies/current", deps.Policies.Current)

	admin := api.Group("/admin")
	admin.Use(middleware.JWTAuth(deps.JWTSecret))
	admin.POST("/sources", deps.Sources.Ingest)
	admin.GET("/sources", deps.Sources.List)
	admin.DELETE("/sources/:id", deps.Sources.Delete)
	admin.GET("/policies", deps.Policies.List)
	admin.GET("/policies/:version", deps.Policies.Get)
	admin.POST("/policies/reinforce", deps.Policies.Reinforce)
	admin.POST("/index/rebuild", deps.Index.Rebuild)
}
