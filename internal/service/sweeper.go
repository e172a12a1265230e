package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"equipment-reminders/internal/leadtime"
	"equipment-reminders/internal/model"
	"equipment-reminders/internal/repository"
)

// SkipReason explains why a candidate produced no notification.
type SkipReason string

// Skip reasons. SkipCoveredByLongerLead marks a reminder whose milestone is
// fired by a longer-lead reminder of the same cycle and recipients.
const (
	SkipAlreadySentToday    SkipReason = "already-sent-today"
	SkipNotEligibleDay      SkipReason = "not-eligible-day"
	SkipAcknowledged        SkipReason = "acknowledged"
	SkipUnknownType         SkipReason = "unknown-type"
	SkipCoveredByLongerLead SkipReason = "covered-by-longer-lead"
)

// Courier delivers a notification through a channel outside the app, such as
// a chat bot. Only whether an attempt succeeded is recorded.
type Courier interface {
	Deliver(ctx context.Context, user model.User, n model.Notification) error
}

// SweepOptions tune one sweep. Force skips the eligible-day check but keeps
// the once-per-day guard.
type SweepOptions struct {
	Force bool
}

type SkipEntry struct {
	ReminderID string     `json:"reminderId"`
	Reason     SkipReason `json:"reason"`
}

type SweepError struct {
	ReminderID   string `json:"reminderId,omitempty"`
	ObligationID string `json:"obligationId,omitempty"`
	Kind         string `json:"kind"`
	Error        string `json:"error"`
}

type TypeResult struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// SweepReport is the outcome of one sweep. Given the same stored state and
// the same day it is identical run to run.
type SweepReport struct {
	Today         string                 `json:"today"`
	Forced        bool                   `json:"forced"`
	Processed     int                    `json:"processed"`
	Created       int                    `json:"created"`
	Notifications int                    `json:"notifications"`
	Materialized  int                    `json:"materialized"`
	Skipped       int                    `json:"skipped"`
	SkipReasons   map[SkipReason]int     `json:"skipReasons"`
	Skips         []SkipEntry            `json:"skips"`
	Errors        []SweepError           `json:"errors"`
	ResultsByType map[string]*TypeResult `json:"resultsByType"`
}

func newSweepReport(today time.Time, forced bool) *SweepReport {
	return &SweepReport{
		Today:         model.DayKey(today),
		Forced:        forced,
		SkipReasons:   make(map[SkipReason]int),
		Skips:         []SkipEntry{},
		Errors:        []SweepError{},
		ResultsByType: make(map[string]*TypeResult),
	}
}

func (r *SweepReport) byType(t model.ObligationType) *TypeResult {
	key := t.String()
	tr, ok := r.ResultsByType[key]
	if !ok {
		tr = &TypeResult{}
		r.ResultsByType[key] = tr
	}
	return tr
}

func (r *SweepReport) skip(rem model.Reminder, reason SkipReason) {
	r.Skipped++
	r.SkipReasons[reason]++
	r.Skips = append(r.Skips, SkipEntry{ReminderID: rem.ID, Reason: reason})
	r.byType(rem.Type).Skipped++
}

func (r *SweepReport) fail(rem model.Reminder, err error) {
	r.Errors = append(r.Errors, SweepError{ReminderID: rem.ID, ObligationID: rem.ObligationID, Kind: errorKind(err), Error: err.Error()})
	r.byType(rem.Type).Errors++
}

func errorKind(err error) string {
	var recipientErr *RecipientError
	var validationErr *ValidationError
	switch {
	case errors.As(err, &recipientErr):
		return "recipient"
	case errors.As(err, &validationErr):
		return "validation"
	default:
		return "store"
	}
}

// Sweeper evaluates due reminders and fires the ones whose milestone has
// arrived. Overlapping sweeps are safe: the SENT transition is a conditional
// update, so only one sweep fans out a given milestone.
type Sweeper struct {
	svc     *ReminderService
	fanout  *FanOut
	courier Courier
	log     *zap.Logger
}

func NewSweeper(svc *ReminderService, fanout *FanOut, courier Courier, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{svc: svc, fanout: fanout, courier: courier, log: log}
}

// Sweep runs one pass. A failure on one reminder is recorded in the report
// and the pass moves on; only failing to load the candidates aborts it.
func (s *Sweeper) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	now := s.svc.clock.Now()
	today := model.DateOf(now, s.svc.loc)
	report := newSweepReport(today, opts.Force)

	s.materialize(ctx, today, report)

	candidates, err := s.svc.reminders.ListCandidates(ctx, today)
	if err != nil {
		return nil, storeErr("load candidates", err)
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ObligationID)
	}
	obligations, err := s.svc.obligations.ListByIDs(ctx, ids)
	if err != nil {
		s.log.Warn("resolve obligation titles", zap.Error(err))
		obligations = map[string]model.Obligation{}
	}

	longest := longestLeads(candidates)
	for _, rem := range candidates {
		covered := rem.LeadDays < longest[trackKey(rem)]
		s.process(ctx, rem, obligations[rem.ObligationID].Title, covered, today, now, opts, report)
	}

	s.log.Info("sweep finished",
		zap.String("today", report.Today),
		zap.Bool("forced", opts.Force),
		zap.Int("processed", report.Processed),
		zap.Int("created", report.Created),
		zap.Int("notifications", report.Notifications),
		zap.Int("materialized", report.Materialized),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// materialize creates reminders for obligations coming due that have none yet.
func (s *Sweeper) materialize(ctx context.Context, today time.Time, report *SweepReport) {
	obs, err := s.svc.obligations.ListDueWithoutReminder(ctx, today, today.AddDate(0, 0, leadtime.MaxLead()))
	if err != nil {
		report.Errors = append(report.Errors, SweepError{Kind: "store", Error: err.Error()})
		s.log.Warn("list obligations without reminder", zap.Error(err))
		return
	}
	for _, ob := range obs {
		if !ob.Kind.Valid() {
			continue
		}
		_, created, err := s.svc.EnsureReminder(ctx, ob)
		if err != nil {
			report.Errors = append(report.Errors, SweepError{ObligationID: ob.ID, Kind: errorKind(err), Error: err.Error()})
			s.log.Warn("materialize reminder", zap.String("obligation_id", ob.ID), zap.Error(err))
			continue
		}
		if created {
			report.Materialized++
		}
	}
}

// trackKey groups reminders that would notify the same recipients for the
// same obligation cycle.
func trackKey(rem model.Reminder) string {
	return rem.ObligationID + "|" + model.DayKey(rem.DueDate) + "|" + TargetFor(rem).String()
}

// longestLeads maps each track to the largest lead among the active candidates.
// A reminder with a larger lead has an earlier reminder date, so it is always
// a candidate whenever a shorter sibling is.
func longestLeads(candidates []model.Reminder) map[string]int {
	out := make(map[string]int, len(candidates))
	for _, rem := range candidates {
		if rem.Status == model.StatusAcknowledged {
			continue
		}
		key := trackKey(rem)
		if lead, ok := out[key]; !ok || rem.LeadDays > lead {
			out[key] = rem.LeadDays
		}
	}
	return out
}

func (s *Sweeper) process(ctx context.Context, rem model.Reminder, title string, covered bool, today, now time.Time, opts SweepOptions, report *SweepReport) {
	report.Processed++
	report.byType(rem.Type).Processed++
	todayKey := model.DayKey(today)
	log := s.log.With(zap.String("reminder_id", rem.ID), zap.Stringer("type", rem.Type))

	switch {
	case !rem.Type.Valid():
		report.skip(rem, SkipUnknownType)
		return
	case rem.Status == model.StatusAcknowledged:
		report.skip(rem, SkipAcknowledged)
		return
	case rem.LastFiredOn == todayKey:
		report.skip(rem, SkipAlreadySentToday)
		return
	case covered:
		report.skip(rem, SkipCoveredByLongerLead)
		return
	}

	milestone, eligible := leadtime.Bucket(rem.Type, rem.DueDate, today)
	if !eligible {
		if !opts.Force {
			report.skip(rem, SkipNotEligibleDay)
			return
		}
		milestone = model.DaysUntil(today, rem.DueDate)
	}

	users, err := s.fanout.Resolve(ctx, rem.ID, TargetFor(rem))
	if err != nil {
		log.Warn("resolve recipients", zap.Error(err))
		report.fail(rem, err)
		return
	}
	notifications := s.fanout.Build(rem, title, milestone, todayKey, users, now)

	claimed, err := s.svc.reminders.Claim(ctx, repository.ClaimRequest{
		ReminderID:    rem.ID,
		Milestone:     milestone,
		Today:         todayKey,
		Notifications: notifications,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransientStore, err)
		log.Warn("claim reminder", zap.Error(err))
		report.fail(rem, err)
		return
	}
	if !claimed {
		report.skip(rem, s.lostClaimReason(ctx, rem.ID))
		return
	}

	report.Created++
	report.Notifications += len(notifications)
	report.byType(rem.Type).Created++
	log.Debug("reminder fired", zap.Int("milestone", milestone), zap.Int("recipients", len(users)))

	s.deliver(ctx, rem, users, notifications, now)
}

// lostClaimReason explains a claim that matched no row: someone acknowledged
// the reminder or another sweep fired it first.
func (s *Sweeper) lostClaimReason(ctx context.Context, id string) SkipReason {
	current, err := s.svc.reminders.FindByID(ctx, id)
	if err == nil && current.Status == model.StatusAcknowledged {
		return SkipAcknowledged
	}
	return SkipAlreadySentToday
}

// deliver pushes the fired notifications through the courier, if one is
// configured, and records a successful attempt on the reminder.
func (s *Sweeper) deliver(ctx context.Context, rem model.Reminder, users []model.User, notifications []model.Notification, now time.Time) {
	if s.courier == nil {
		return
	}
	delivered := false
	for i, u := range users {
		if u.TelegramChatID == 0 {
			continue
		}
		if err := s.courier.Deliver(ctx, u, notifications[i]); err != nil {
			s.log.Warn("courier delivery failed", zap.String("reminder_id", rem.ID), zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		delivered = true
	}
	if !delivered {
		return
	}
	if err := s.svc.reminders.MarkEmailSent(ctx, rem.ID, now); err != nil {
		s.log.Warn("record courier delivery", zap.String("reminder_id", rem.ID), zap.Error(err))
	}
}
