package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"equipment-reminders/internal/service"
	"equipment-reminders/internal/triggercache"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HandlerBundle carries the services behind the HTTP surface.
type HandlerBundle struct {
	Reminders     *service.ReminderService
	Notifications *service.NotificationService
	Sweeper       *service.Sweeper
	Toasts        triggercache.Store
	Ping          func() error
	Log           *zap.Logger
}

func (hb *HandlerBundle) logger(c *gin.Context) *zap.Logger {
	if l, ok := c.Get("logger"); ok {
		if log, ok := l.(*zap.Logger); ok {
			return log
		}
	}
	if hb.Log != nil {
		return hb.Log
	}
	return zap.NewNop()
}

// respondError maps the service error taxonomy onto status codes.
func (hb *HandlerBundle) respondError(c *gin.Context, err error) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		jsonError(c, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, service.ErrNotFound):
		jsonError(c, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, service.ErrTransientStore):
		hb.logger(c).Error("store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		jsonError(c, http.StatusServiceUnavailable, "Storage temporarily unavailable", "Please retry shortly.")
	default:
		hb.logger(c).Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func jsonError(c *gin.Context, status int, message, details string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Message: message, Details: details})
}

// HealthHandler reports whether the store answers.
func (hb *HandlerBundle) HealthHandler(c *gin.Context) {
	if hb.Ping != nil {
		if err := hb.Ping(); err != nil {
			hb.logger(c).Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
