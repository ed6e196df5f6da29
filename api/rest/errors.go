package rest

import (
	"errors"
	"net/http"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/audit"
	mw "github.com/Fixen7/lifequest-app/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusOf maps an engine error to an HTTP status.
func statusOf(err error) int {
	switch {
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrNotReady):
		return http.StatusServiceUnavailable
	case apperr.IsStoreWrite(err), apperr.IsExternal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respond writes result under key. A failed store write still carries the
// optimistic result, since local state has already moved on and a later
// snapshot will correct it.
func respond(c *gin.Context, logger *zap.Logger, key string, result any, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{key: result})
		return
	}
	status := statusOf(err)
	body := gin.H{"error": err.Error()}
	if apperr.IsStoreWrite(err) {
		body[key] = result
	}
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed",
			zap.String("trace_id", audit.TraceID(c.Request.Context())),
			zap.String("user_id", mw.GetUserID(c)),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func abortWith(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}
