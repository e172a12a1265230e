package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"equipment-reminders/internal/clock"
	"equipment-reminders/internal/leadtime"
	"equipment-reminders/internal/model"
	"equipment-reminders/internal/repository"
)

// ReminderStore is the persistence the engine needs for reminders.
type ReminderStore interface {
	CreateIfAbsent(ctx context.Context, rem *model.Reminder) (*model.Reminder, bool, error)
	FindByID(ctx context.Context, id string) (*model.Reminder, error)
	List(ctx context.Context, filter repository.ReminderFilter) ([]model.Reminder, error)
	ListSentFor(ctx context.Context, userID, role string) ([]model.Reminder, error)
	ListCandidates(ctx context.Context, today time.Time) ([]model.Reminder, error)
	Claim(ctx context.Context, req repository.ClaimRequest) (bool, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	Acknowledge(ctx context.Context, id string, at time.Time, plan repository.SuccessorFunc) (*repository.AckOutcome, error)
	CompleteObligation(ctx context.Context, obligationID string, at time.Time, plan repository.SuccessorFunc) (*repository.CompletionOutcome, error)
}

// ObligationSource reads the obligations owned by the surrounding tracker.
type ObligationSource interface {
	FindByID(ctx context.Context, id string) (*model.Obligation, error)
	ListByIDs(ctx context.Context, ids []string) (map[string]model.Obligation, error)
	ListDueWithoutReminder(ctx context.Context, from, to time.Time) ([]model.Obligation, error)
}

// CreateReminderInput is the data needed to schedule a reminder.
type CreateReminderInput struct {
	Type         model.ObligationType
	ObligationID string
	LeadDays     *int
	UserID       string
	Role         string
}

// ObligationSummary is the part of an obligation shown next to a reminder.
type ObligationSummary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	OwnerUserID string     `json:"ownerUserId,omitempty"`
	IsRecurring bool       `json:"isRecurring"`
	Frequency   string     `json:"frequency,omitempty"`
}

// ReminderView is a reminder with its obligation resolved.
type ReminderView struct {
	model.Reminder
	Obligation *ObligationSummary `json:"obligation,omitempty"`
}

// ReminderService owns the reminder state machine: creation, acknowledgement
// and completion of obligations.
type ReminderService struct {
	reminders   ReminderStore
	obligations ObligationSource
	expander    *RecurrenceExpander
	clock       clock.Clock
	loc         *time.Location
	defaultRole string
	log         *zap.Logger
}

func NewReminderService(reminders ReminderStore, obligations ObligationSource, clk clock.Clock, loc *time.Location, defaultRole string, log *zap.Logger) *ReminderService {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReminderService{
		reminders:   reminders,
		obligations: obligations,
		expander:    NewRecurrenceExpander(defaultRole),
		clock:       clk,
		loc:         loc,
		defaultRole: defaultRole,
		log:         log,
	}
}

// Today is the current calendar date in the service's time zone.
func (s *ReminderService) Today() time.Time {
	return model.DateOf(s.clock.Now(), s.loc)
}

// Create schedules a reminder for an obligation. When an active reminder for
// the same obligation and lead time exists it is returned with created=false.
func (s *ReminderService) Create(ctx context.Context, in CreateReminderInput) (*model.Reminder, bool, error) {
	if !in.Type.Valid() {
		return nil, false, &ValidationError{Field: "type", Reason: "unknown obligation type"}
	}
	if in.ObligationID == "" {
		return nil, false, &ValidationError{Field: "obligationId", Reason: "required"}
	}

	ob, err := s.obligations.FindByID(ctx, in.ObligationID)
	if err != nil {
		if isNotFound(err) {
			return nil, false, &ValidationError{Field: "obligationId", Reason: "unknown obligation"}
		}
		return nil, false, storeErr("find obligation", err)
	}
	if ob.Kind != in.Type {
		return nil, false, &ValidationError{Field: "type", Reason: fmt.Sprintf("obligation is %s, not %s", ob.Kind, in.Type)}
	}
	if ob.DueDate == nil {
		return nil, false, &ValidationError{Field: "obligationId", Reason: "obligation has no due date"}
	}

	lead, _ := leadtime.FirstLead(in.Type)
	if in.LeadDays != nil {
		if !leadtime.IsMilestone(in.Type, *in.LeadDays) {
			return nil, false, &ValidationError{Field: "leadDays", Reason: fmt.Sprintf("%d is not a milestone of %s", *in.LeadDays, in.Type)}
		}
		lead = *in.LeadDays
	}

	rem := newReminder(*ob, lead, Target{UserID: in.UserID, Role: in.Role}, s.defaultRole)
	out, created, err := s.reminders.CreateIfAbsent(ctx, &rem)
	if err != nil {
		return nil, false, storeErr("create reminder", err)
	}
	if created {
		s.log.Info("reminder created",
			zap.String("reminder_id", out.ID),
			zap.String("obligation_id", out.ObligationID),
			zap.Stringer("type", out.Type),
			zap.Int("lead_days", out.LeadDays),
			zap.String("reminder_date", model.DayKey(out.ReminderDate)))
	}
	return out, created, nil
}

// EnsureReminder creates the first reminder of ob's current cycle if missing.
func (s *ReminderService) EnsureReminder(ctx context.Context, ob model.Obligation) (*model.Reminder, bool, error) {
	return s.Create(ctx, CreateReminderInput{Type: ob.Kind, ObligationID: ob.ID})
}

func (s *ReminderService) Get(ctx context.Context, id string) (*model.Reminder, error) {
	rem, err := s.reminders.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("find reminder", err)
	}
	return rem, nil
}

func (s *ReminderService) Obligation(ctx context.Context, id string) (*model.Obligation, error) {
	ob, err := s.obligations.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("find obligation", err)
	}
	return ob, nil
}

// Acknowledge moves a reminder to ACKNOWLEDGED. Acknowledging twice returns
// the stored state unchanged. A recurring inventory check spawns its next
// cycle in the same transaction.
func (s *ReminderService) Acknowledge(ctx context.Context, id string) (*repository.AckOutcome, error) {
	out, err := s.reminders.Acknowledge(ctx, id, s.clock.Now(), s.expander.Plan)
	if err != nil {
		return nil, storeErr("acknowledge reminder", err)
	}
	if out.Changed {
		fields := []zap.Field{zap.String("reminder_id", id)}
		if out.Successor != nil {
			fields = append(fields, zap.String("successor_id", out.Successor.ID), zap.Bool("expanded", out.Expanded))
		}
		s.log.Info("reminder acknowledged", fields...)
	}
	return out, nil
}

// CompleteObligation records that the obligation was handled outside the
// reminder flow, e.g. an inventory check performed by hand.
func (s *ReminderService) CompleteObligation(ctx context.Context, obligationID string) (*repository.CompletionOutcome, error) {
	out, err := s.reminders.CompleteObligation(ctx, obligationID, s.clock.Now(), s.expander.Plan)
	if err != nil {
		return nil, storeErr("complete obligation", err)
	}
	s.log.Info("obligation completed",
		zap.String("obligation_id", obligationID),
		zap.Int("acknowledged", out.Acknowledged),
		zap.Bool("expanded", out.Expanded))
	return out, nil
}

// List returns reminders with their obligations resolved.
func (s *ReminderService) List(ctx context.Context, filter repository.ReminderFilter) ([]ReminderView, error) {
	rems, err := s.reminders.List(ctx, filter)
	if err != nil {
		return nil, storeErr("list reminders", err)
	}
	ids := make([]string, 0, len(rems))
	seen := make(map[string]struct{}, len(rems))
	for _, r := range rems {
		if _, ok := seen[r.ObligationID]; ok {
			continue
		}
		seen[r.ObligationID] = struct{}{}
		ids = append(ids, r.ObligationID)
	}
	obs, err := s.obligations.ListByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr("resolve obligations", err)
	}

	out := make([]ReminderView, 0, len(rems))
	for _, r := range rems {
		view := ReminderView{Reminder: r}
		if ob, ok := obs[r.ObligationID]; ok {
			view.Obligation = &ObligationSummary{
				ID:          ob.ID,
				Title:       ob.Title,
				DueDate:     ob.DueDate,
				OwnerUserID: ob.OwnerUserID,
				IsRecurring: ob.IsRecurring,
				Frequency:   string(ob.Frequency),
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// SentFor lists SENT reminders addressed to user directly or through a role.
func (s *ReminderService) SentFor(ctx context.Context, user model.User) ([]model.Reminder, error) {
	rems, err := s.reminders.ListSentFor(ctx, user.ID, user.Role)
	if err != nil {
		return nil, storeErr("list sent reminders", err)
	}
	return rems, nil
}

// newReminder builds a PENDING reminder for ob at the given lead time.
// Recipients: an explicit role or user wins, then the obligation's notify
// role, then its owner, then defaultRole.
func newReminder(ob model.Obligation, lead int, target Target, defaultRole string) model.Reminder {
	due := model.Date(*ob.DueDate)
	rem := model.Reminder{
		ID:            uuid.NewString(),
		Type:          ob.Kind,
		ObligationID:  ob.ID,
		LineageID:     ob.LineageID,
		LeadDays:      lead,
		DueDate:       due,
		ReminderDate:  leadtime.ReminderDate(due, lead),
		Status:        model.StatusPending,
		UserID:        target.UserID,
		RecipientRole: target.Role,
	}
	switch {
	case target.Role != "", target.UserID != "":
	case ob.NotifyRole != "":
		rem.RecipientRole = ob.NotifyRole
	case ob.OwnerUserID != "":
		rem.UserID = ob.OwnerUserID
	default:
		rem.RecipientRole = defaultRole
	}
	if rem.UserID == "" {
		rem.UserID = ob.OwnerUserID
	}
	return rem
}
