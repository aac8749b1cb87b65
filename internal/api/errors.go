package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	ErrBotNotFound    = errors.New("bot not found")
	ErrPoolDisabled   = errors.New("pooled mode is disabled")
	ErrInvalidRequest = errors.New("invalid request")
	ErrHealthDisabled = errors.New("health monitor not attached")
)

func respondError(c *gin.Context, code int, err error) {
	c.JSON(code, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

func abortWithError(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

// mapServiceError classifies an error returned by the mapper/pool manager
// into an HTTP status by substring match rather than a bespoke
// error-type hierarchy.
func mapServiceError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "not found"):
		return http.StatusNotFound
	case strings.Contains(errMsg, "disabled"):
		return http.StatusConflict
	case strings.Contains(errMsg, "already"):
		return http.StatusConflict
	case strings.Contains(errMsg, "full") || strings.Contains(errMsg, "capacity"):
		return http.StatusConflict
	case strings.Contains(errMsg, "not supported"):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
