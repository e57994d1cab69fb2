package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/toole/internal/core/analysis"
	"github.com/steveyiyo/toole/internal/core/instruct"
	"github.com/steveyiyo/toole/internal/core/language"
)

// errorCode maps a pipeline error onto the API's status and error code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, language.ErrUnsupported):
		return http.StatusBadRequest, "unsupported_language"
	case errors.Is(err, analysis.ErrBadImage):
		return http.StatusBadRequest, "bad_image"
	case errors.Is(err, instruct.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "server_busy"
	case errors.Is(err, analysis.ErrModel):
		return http.StatusBadGateway, "model_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func abortWithError(c *gin.Context, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "code", code, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
