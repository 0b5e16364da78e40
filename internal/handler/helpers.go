package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragcore/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
	"github.com/xxxsen/ragcore/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrInvalidQuery):
		response.Error(c, errcode.ErrInvalidQuery, "invalid query")
	case errors.Is(err, appErr.ErrInvalidRating):
		response.Error(c, errcode.ErrInvalidRating, "rating must be between 1 and 5")
	case errors.Is(err, appErr.ErrUnknownQuery):
		response.Error(c, errcode.ErrUnknownQuery, "unknown query")
	case errors.Is(err, appErr.ErrEmbeddingUnavailable):
		response.Error(c, errcode.ErrEmbeddingUnavailable, "embedding service unavailable")
	case errors.Is(err, appErr.ErrGenerationUnavailable):
		response.Error(c, errcode.ErrGenerationUnavailable, "generation service unavailable")
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
