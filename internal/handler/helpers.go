package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xxxsen/common/logutil"

	"github.com/kvander/bookdex/internal/pkg/errcode"
	appErr "github.com/kvander/bookdex/internal/pkg/errors"
	"github.com/kvander/bookdex/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case appErr.IsNotFound(err):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case appErr.IsConflict(err):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrRateLimited) || errors.Is(err, appErr.ErrTransient):
		response.Error(c, errcode.ErrEmbedUnavailable, "embedding provider unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
