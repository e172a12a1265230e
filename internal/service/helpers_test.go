package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"equipment-reminders/internal/clock"
	"equipment-reminders/internal/model"
	"equipment-reminders/internal/repository"
)

type testEnv struct {
	db            *gorm.DB
	clock         *clock.Fixed
	users         *repository.UserRepository
	obligations   *repository.ObligationRepository
	reminders     *repository.ReminderRepository
	notifications *repository.NotificationRepository
	svc           *ReminderService
	fanout        *FanOut
	sweeper       *Sweeper
}

// newTestEnv wires the engine over a fresh SQLite file with the clock set to
// 09:00 UTC on day.
func newTestEnv(t *testing.T, day string) *testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	env := &testEnv{
		db:            db,
		clock:         clock.NewFixed(at(t, day)),
		users:         repository.NewUserRepository(db),
		obligations:   repository.NewObligationRepository(db),
		reminders:     repository.NewReminderRepository(db),
		notifications: repository.NewNotificationRepository(db),
	}
	env.svc = NewReminderService(env.reminders, env.obligations, env.clock, time.UTC, model.RoleAdmin, zap.NewNop())
	env.fanout = NewFanOut(env.users)
	env.sweeper = NewSweeper(env.svc, env.fanout, nil, zap.NewNop())
	return env
}

func at(t *testing.T, day string) time.Time {
	t.Helper()
	d, err := model.ParseDay(day)
	require.NoError(t, err)
	return d.Add(9 * time.Hour)
}

func date(t *testing.T, day string) time.Time {
	t.Helper()
	d, err := model.ParseDay(day)
	require.NoError(t, err)
	return d
}

func (e *testEnv) setDay(t *testing.T, day string) {
	t.Helper()
	e.clock.Set(at(t, day))
}

func (e *testEnv) addUser(t *testing.T, role string) model.User {
	t.Helper()
	u := model.User{ID: uuid.NewString(), Name: "user-" + role, Role: role}
	require.NoError(t, e.users.Upsert(context.Background(), &u))
	return u
}

type obligationOpt func(*model.Obligation)

func ownedBy(userID string) obligationOpt {
	return func(o *model.Obligation) { o.OwnerUserID = userID }
}

func notifyRole(role string) obligationOpt {
	return func(o *model.Obligation) { o.NotifyRole = role }
}

func recurring(freq model.Frequency) obligationOpt {
	return func(o *model.Obligation) {
		o.IsRecurring = true
		o.Frequency = freq
	}
}

func (e *testEnv) addObligation(t *testing.T, kind model.ObligationType, due string, opts ...obligationOpt) model.Obligation {
	t.Helper()
	d := date(t, due)
	ob := model.Obligation{Kind: kind, Title: kind.String() + " " + due, DueDate: &d}
	for _, opt := range opts {
		opt(&ob)
	}
	require.NoError(t, e.obligations.Create(context.Background(), &ob))
	return ob
}

func (e *testEnv) createReminder(t *testing.T, ob model.Obligation) *model.Reminder {
	t.Helper()
	rem, _, err := e.svc.Create(context.Background(), CreateReminderInput{Type: ob.Kind, ObligationID: ob.ID})
	require.NoError(t, err)
	return rem
}

func (e *testEnv) sweep(t *testing.T, force bool) *SweepReport {
	t.Helper()
	report, err := e.sweeper.Sweep(context.Background(), SweepOptions{Force: force})
	require.NoError(t, err)
	return report
}

func (e *testEnv) reload(t *testing.T, id string) model.Reminder {
	t.Helper()
	rem, err := e.reminders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return *rem
}

func (e *testEnv) countNotifications(t *testing.T, reminderID string) int {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Notification{}).Where("reminder_id = ?", reminderID).Count(&n).Error)
	return int(n)
}

func (e *testEnv) notificationsFor(t *testing.T, userID string) []model.Notification {
	t.Helper()
	out, err := e.notifications.ListByUser(context.Background(), userID, false)
	require.NoError(t, err)
	return out
}
