package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"equipment-reminders/internal/model"
	"equipment-reminders/internal/repository"
	"equipment-reminders/internal/service"
)

type createReminderRequest struct {
	Type         string `json:"type" binding:"required"`
	ObligationID string `json:"obligationId" binding:"required"`
	LeadDays     *int   `json:"leadDays"`
	UserID       string `json:"userId"`
	Role         string `json:"role"`
}

// CreateReminderHandler schedules a reminder. 201 when created, 200 when an
// active reminder already existed.
func (hb *HandlerBundle) CreateReminderHandler(c *gin.Context) {
	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	kind, ok := model.ParseObligationType(req.Type)
	if !ok {
		hb.respondError(c, &service.ValidationError{Field: "type", Reason: "unknown obligation type " + strconv.Quote(req.Type)})
		return
	}

	rem, created, err := hb.Reminders.Create(c.Request.Context(), service.CreateReminderInput{
		Type:         kind,
		ObligationID: req.ObligationID,
		LeadDays:     req.LeadDays,
		UserID:       req.UserID,
		Role:         req.Role,
	})
	if err != nil {
		hb.respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, rem)
}

// ListRemindersHandler lists reminders, optionally narrowed by ?type= and ?status=.
func (hb *HandlerBundle) ListRemindersHandler(c *gin.Context) {
	var filter repository.ReminderFilter
	if raw := c.Query("type"); raw != "" {
		kind, ok := model.ParseObligationType(raw)
		if !ok {
			hb.respondError(c, &service.ValidationError{Field: "type", Reason: "unknown obligation type " + strconv.Quote(raw)})
			return
		}
		filter.Type = kind
	}
	if raw := c.Query("status"); raw != "" {
		status := model.ReminderStatus(raw)
		if !status.Valid() {
			hb.respondError(c, &service.ValidationError{Field: "status", Reason: "unknown status " + strconv.Quote(raw)})
			return
		}
		filter.Status = status
	}

	views, err := hb.Reminders.List(c.Request.Context(), filter)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": views})
}

type updateReminderRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateReminderHandler acknowledges a reminder. The only accepted target
// status is ACKNOWLEDGED; repeating the call returns the stored state.
func (hb *HandlerBundle) UpdateReminderHandler(c *gin.Context) {
	var req updateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if model.ReminderStatus(req.Status) != model.StatusAcknowledged {
		hb.respondError(c, &service.ValidationError{Field: "status", Reason: "only ACKNOWLEDGED can be set"})
		return
	}

	out, err := hb.Reminders.Acknowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// RunSweepHandler runs one sweep on demand. ?force=true skips the eligible
// day check.
func (hb *HandlerBundle) RunSweepHandler(c *gin.Context) {
	force := false
	if raw := c.Query("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			hb.respondError(c, &service.ValidationError{Field: "force", Reason: "must be a boolean"})
			return
		}
		force = parsed
	}

	report, err := hb.Sweeper.Sweep(c.Request.Context(), service.SweepOptions{Force: force})
	if err != nil {
		hb.respondError(c, err)
		return
	}
	hb.logger(c).Info("sweep triggered over http", zap.Bool("forced", force), zap.Int("created", report.Created))
	c.JSON(http.StatusOK, report)
}

// CompleteObligationHandler records that an obligation was handled, e.g. an
// inventory check performed by hand.
func (hb *HandlerBundle) CompleteObligationHandler(c *gin.Context) {
	kind, ok := model.ParseObligationType(c.Param("kind"))
	if !ok {
		hb.respondError(c, &service.ValidationError{Field: "kind", Reason: "unknown obligation type " + strconv.Quote(c.Param("kind"))})
		return
	}
	ctx := c.Request.Context()
	ob, err := hb.Reminders.Obligation(ctx, c.Param("id"))
	if err != nil {
		hb.respondError(c, err)
		return
	}
	if ob.Kind != kind {
		jsonError(c, http.StatusNotFound, "Not found", "no "+kind.String()+" obligation "+strconv.Quote(ob.ID))
		return
	}

	out, err := hb.Reminders.CompleteObligation(ctx, ob.ID)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
