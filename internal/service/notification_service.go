package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"equipment-reminders/internal/clock"
	"equipment-reminders/internal/leadtime"
	"equipment-reminders/internal/model"
	"equipment-reminders/internal/triggercache"
)

// NotificationStore reads and flags delivered notifications.
type NotificationStore interface {
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) (*model.Notification, error)
	ListByRelated(ctx context.Context, relatedID string) ([]model.Notification, error)
}

// NotificationService serves the in-app notification inbox and the
// per-session toast feed.
type NotificationService struct {
	store     NotificationStore
	reminders ReminderStore
	clock     clock.Clock
	loc       *time.Location
	log       *zap.Logger
}

func NewNotificationService(store NotificationStore, reminders ReminderStore, clk clock.Clock, loc *time.Location, log *zap.Logger) *NotificationService {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{store: store, reminders: reminders, clock: clk, loc: loc, log: log}
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	out, err := s.store.ListByUser(ctx, userID, unreadOnly)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) (*model.Notification, error) {
	n, err := s.store.MarkRead(ctx, id)
	if err != nil {
		return nil, storeErr("mark notification read", err)
	}
	return n, nil
}

// ForObligation returns every notification fired for an obligation, grouped
// by recipient.
func (s *NotificationService) ForObligation(ctx context.Context, obligationID string) ([]model.Notification, error) {
	out, err := s.store.ListByRelated(ctx, obligationID)
	if err != nil {
		return nil, storeErr("list obligation notifications", err)
	}
	return out, nil
}

// Toasts picks the unread notifications to pop up in a client session: the
// newest one per reminder, unless the reminder was acknowledged, is outside
// its eligible window today, or was already shown in this session today.
// Whatever is returned is recorded as displayed.
//
// The cache only suppresses repeats. When it fails the toast is shown anyway.
func (s *NotificationService) Toasts(ctx context.Context, cache triggercache.Cache, userID string) ([]model.Notification, error) {
	unread, err := s.store.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	today := model.DateOf(s.clock.Now(), s.loc)

	seen := make(map[string]struct{}, len(unread))
	out := make([]model.Notification, 0, len(unread))
	// unread is newest first, so the first row per reminder wins.
	for _, n := range unread {
		if n.ReminderID == "" {
			continue
		}
		if _, dup := seen[n.ReminderID]; dup {
			continue
		}
		seen[n.ReminderID] = struct{}{}

		rem, err := s.reminders.FindByID(ctx, n.ReminderID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, storeErr("find reminder", err)
		}
		if rem.Status == model.StatusAcknowledged {
			continue
		}

		show, err := cache.ShouldDisplay(ctx, rem.ID, rem.DueDate, rem.Type, today)
		if err != nil {
			s.log.Warn("trigger cache read failed", zap.String("reminder_id", rem.ID), zap.Error(err))
			show = leadtime.IsEligibleDay(rem.Type, rem.DueDate, today)
		}
		if !show {
			continue
		}
		if err := cache.RecordDisplay(ctx, rem.ID); err != nil {
			s.log.Warn("trigger cache write failed", zap.String("reminder_id", rem.ID), zap.Error(err))
		}
		out = append(out, n)
	}
	return out, nil
}
