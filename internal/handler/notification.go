package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"equipment-reminders/internal/model"
	"equipment-reminders/internal/service"
)

// ListNotificationsHandler returns a user's notifications, newest first.
// ?unread=true drops the ones already read.
func (hb *HandlerBundle) ListNotificationsHandler(c *gin.Context) {
	unreadOnly := false
	if raw := c.Query("unread"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			hb.respondError(c, &service.ValidationError{Field: "unread", Reason: "must be a boolean"})
			return
		}
		unreadOnly = parsed
	}

	items, err := hb.Notifications.List(c.Request.Context(), c.Param("id"), unreadOnly)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (hb *HandlerBundle) MarkNotificationReadHandler(c *gin.Context) {
	n, err := hb.Notifications.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// ToastsHandler returns the notifications a client session should pop up now.
func (hb *HandlerBundle) ToastsHandler(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		hb.respondError(c, &service.ValidationError{Field: "userId", Reason: "required"})
		return
	}
	cache := hb.Toasts.Session(c.Param("session"))
	items, err := hb.Notifications.Toasts(c.Request.Context(), cache, userID)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"toasts": items})
}

// ObligationNotificationsHandler lists the fan-out history of one obligation.
func (hb *HandlerBundle) ObligationNotificationsHandler(c *gin.Context) {
	if _, ok := model.ParseObligationType(c.Param("kind")); !ok {
		hb.respondError(c, &service.ValidationError{Field: "kind", Reason: "unknown obligation type " + strconv.Quote(c.Param("kind"))})
		return
	}
	items, err := hb.Notifications.ForObligation(c.Request.Context(), c.Param("id"))
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}
