package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"equipment-reminders/internal/model"
	"equipment-reminders/internal/repository"
)

func TestSweep_CalibrationMilestones(t *testing.T) {
	env := newTestEnv(t, "2025-02-01")
	owner := env.addUser(t, model.RoleUser)
	ob := env.addObligation(t, model.ObligationCalibration, "2025-03-31", ownedBy(owner.ID))
	rem := env.createReminder(t, ob)

	steps := []struct {
		day     string
		created int
		reason  SkipReason
	}{
		{"2025-02-01", 0, ""},
		{"2025-03-01", 1, ""},
		{"2025-03-02", 0, SkipNotEligibleDay},
		{"2025-03-24", 1, ""},
		{"2025-03-24", 0, SkipAlreadySentToday},
		{"2025-03-30", 1, ""},
		{"2025-03-31", 0, SkipNotEligibleDay},
	}
	for _, step := range steps {
		env.setDay(t, step.day)
		report := env.sweep(t, false)
		assert.Equal(t, step.created, report.Created, step.day)
		assert.Empty(t, report.Errors, step.day)
		if step.reason != "" {
			assert.Equal(t, 1, report.SkipReasons[step.reason], step.day)
		}
	}

	got := env.notificationsFor(t, owner.ID)
	require.Len(t, got, 3)
	milestones := map[int]bool{}
	for _, n := range got {
		milestones[n.Milestone] = true
		assert.Equal(t, ob.ID, n.RelatedID)
		assert.Equal(t, model.ObligationCalibration, n.Type)
	}
	assert.Equal(t, map[int]bool{30: true, 7: true, 1: true}, milestones)

	stored := env.reload(t, rem.ID)
	assert.Equal(t, model.StatusSent, stored.Status)
	require.NotNil(t, stored.LastMilestone)
	assert.Equal(t, 1, *stored.LastMilestone)
	assert.Equal(t, "2025-03-30", stored.LastFiredOn)
	assert.Equal(t, 3, stored.Version)
}

func TestSweep_NotYetDue(t *testing.T) {
	env := newTestEnv(t, "2025-02-01")
	ob := env.addObligation(t, model.ObligationCalibration, "2025-03-31")
	env.createReminder(t, ob)

	report := env.sweep(t, false)
	assert.Equal(t, "2025-02-01", report.Today)
	assert.Zero(t, report.Processed)
	assert.Zero(t, report.Created)
}

func TestSweep_SecondRunSameDaySkipsEverything(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	env.addUser(t, model.RoleAdmin)
	for _, due := range []string{"2025-03-31", "2025-03-08"} {
		env.createReminder(t, env.addObligation(t, model.ObligationCalibration, due))
	}
	rental := env.addObligation(t, model.ObligationRental, "2025-03-03")
	env.createReminder(t, rental)

	first := env.sweep(t, false)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 3, first.Notifications)

	second := env.sweep(t, false)
	assert.Zero(t, second.Created)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 3, second.SkipReasons[SkipAlreadySentToday])
	assert.Empty(t, second.Errors)

	third := env.sweep(t, false)
	assert.Equal(t, second, third)
}

func TestSweep_FanOutToRole(t *testing.T) {
	env := newTestEnv(t, "2025-03-24")
	admins := []model.User{env.addUser(t, model.RoleAdmin), env.addUser(t, model.RoleAdmin), env.addUser(t, model.RoleAdmin)}
	tech := env.addUser(t, model.RoleTechnician)
	ob := env.addObligation(t, model.ObligationMaintenance, "2025-03-31", notifyRole(model.RoleAdmin))
	rem := env.createReminder(t, ob)

	report := env.sweep(t, false)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 3, report.Notifications)
	assert.Equal(t, 3, env.countNotifications(t, rem.ID))

	for _, a := range admins {
		got := env.notificationsFor(t, a.ID)
		require.Len(t, got, 1)
		assert.Equal(t, ob.ID, got[0].RelatedID)
		assert.Equal(t, 7, got[0].Milestone)
		assert.Equal(t, "2025-03-24", got[0].FiredOn)
	}
	assert.Empty(t, env.notificationsFor(t, tech.ID))

	late := env.addUser(t, model.RoleAdmin)
	env.sweep(t, false)
	assert.Empty(t, env.notificationsFor(t, late.ID))
	assert.Equal(t, 3, env.countNotifications(t, rem.ID))

	// Role membership is read at fire time, so the late admin gets the next milestone.
	env.setDay(t, "2025-03-28")
	env.sweep(t, false)
	assert.Len(t, env.notificationsFor(t, late.ID), 1)
	assert.Equal(t, 7, env.countNotifications(t, rem.ID))
}

func TestSweep_RecipientFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t, "2025-03-24")
	healthyOwner := env.addUser(t, model.RoleUser)
	broken := env.addObligation(t, model.ObligationCalibration, "2025-03-31", ownedBy("ghost"))
	healthy := env.addObligation(t, model.ObligationCalibration, "2025-03-31", ownedBy(healthyOwner.ID))
	seven := 7
	brokenRem, _, err := env.svc.Create(context.Background(), CreateReminderInput{Type: broken.Kind, ObligationID: broken.ID, LeadDays: &seven})
	require.NoError(t, err)
	healthyRem, _, err := env.svc.Create(context.Background(), CreateReminderInput{Type: healthy.Kind, ObligationID: healthy.ID, LeadDays: &seven})
	require.NoError(t, err)

	report := env.sweep(t, false)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, brokenRem.ID, report.Errors[0].ReminderID)
	assert.Equal(t, "recipient", report.Errors[0].Kind)

	stored := env.reload(t, brokenRem.ID)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Empty(t, stored.LastFiredOn)
	assert.Equal(t, model.StatusSent, env.reload(t, healthyRem.ID).Status)

	require.NoError(t, env.users.Upsert(context.Background(), &model.User{ID: "ghost", Name: "ghost", Role: model.RoleUser}))
	retry := env.sweep(t, false)
	assert.Equal(t, 1, retry.Created)
	assert.Empty(t, retry.Errors)
	assert.Len(t, env.notificationsFor(t, "ghost"), 1)
}

func TestSweep_EmptyRoleIsRecipientError(t *testing.T) {
	env := newTestEnv(t, "2025-03-31")
	ob := env.addObligation(t, model.ObligationSchedule, "2025-03-31", notifyRole(model.RoleTechnician))
	rem := env.createReminder(t, ob)

	report := env.sweep(t, false)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "recipient", report.Errors[0].Kind)
	assert.Equal(t, model.StatusPending, env.reload(t, rem.ID).Status)
}

// failingClaims fails the claim of one reminder.
type failingClaims struct {
	*repository.ReminderRepository
	failID string
}

func (f failingClaims) Claim(ctx context.Context, req repository.ClaimRequest) (bool, error) {
	if req.ReminderID == f.failID {
		return false, errors.New("disk I/O error")
	}
	return f.ReminderRepository.Claim(ctx, req)
}

func TestSweep_ClaimFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	env.addUser(t, model.RoleAdmin)
	bad := env.createReminder(t, env.addObligation(t, model.ObligationCalibration, "2025-03-31"))
	good := env.createReminder(t, env.addObligation(t, model.ObligationCalibration, "2025-03-31"))

	svc := NewReminderService(failingClaims{env.reminders, bad.ID}, env.obligations, env.clock, time.UTC, model.RoleAdmin, zap.NewNop())
	sweeper := NewSweeper(svc, env.fanout, nil, zap.NewNop())

	report, err := sweeper.Sweep(context.Background(), SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, bad.ID, report.Errors[0].ReminderID)
	assert.Equal(t, "store", report.Errors[0].Kind)
	assert.Equal(t, 1, report.ResultsByType["CALIBRATION"].Errors)

	assert.Equal(t, model.StatusPending, env.reload(t, bad.ID).Status)
	assert.Zero(t, env.countNotifications(t, bad.ID))
	assert.Equal(t, model.StatusSent, env.reload(t, good.ID).Status)

	// The next sweep on the same day picks the failed reminder up.
	retry := env.sweep(t, false)
	assert.Equal(t, 1, retry.Created)
	assert.Equal(t, 1, env.countNotifications(t, bad.ID))
}

func TestSweep_UnknownTypeNeverFires(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	env.addUser(t, model.RoleAdmin)
	rem := env.createReminder(t, env.addObligation(t, model.ObligationCalibration, "2025-03-31"))
	require.NoError(t, env.db.Model(&model.Reminder{}).Where("id = ?", rem.ID).Update("type", "INSPECTION").Error)

	for _, force := range []bool{false, true} {
		report := env.sweep(t, force)
		assert.Zero(t, report.Created)
		assert.Equal(t, 1, report.SkipReasons[SkipUnknownType])
		assert.Equal(t, 1, report.ResultsByType["UNKNOWN"].Skipped)
	}
	assert.Zero(t, env.countNotifications(t, rem.ID))
	assert.Equal(t, model.StatusPending, env.reload(t, rem.ID).Status)
}

func TestSweep_AcknowledgedNeverFires(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	env.addUser(t, model.RoleAdmin)
	rem := env.createReminder(t, env.addObligation(t, model.ObligationCalibration, "2025-03-31"))
	_, err := env.svc.Acknowledge(context.Background(), rem.ID)
	require.NoError(t, err)

	for _, day := range []string{"2025-03-01", "2025-03-24", "2025-03-30"} {
		env.setDay(t, day)
		report := env.sweep(t, true)
		assert.Zero(t, report.Created, day)
	}
	assert.Zero(t, env.countNotifications(t, rem.ID))
}

func TestSweep_ForceBypassesEligibleDay(t *testing.T) {
	env := newTestEnv(t, "2025-03-02")
	owner := env.addUser(t, model.RoleUser)
	rem := env.createReminder(t, env.addObligation(t, model.ObligationCalibration, "2025-03-31", ownedBy(owner.ID)))

	plain := env.sweep(t, false)
	assert.Zero(t, plain.Created)
	assert.Equal(t, 1, plain.SkipReasons[SkipNotEligibleDay])

	forced := env.sweep(t, true)
	assert.True(t, forced.Forced)
	assert.Equal(t, 1, forced.Created)
	got := env.notificationsFor(t, owner.ID)
	require.Len(t, got, 1)
	assert.Equal(t, 29, got[0].Milestone)

	again := env.sweep(t, true)
	assert.Zero(t, again.Created)
	assert.Equal(t, 1, again.SkipReasons[SkipAlreadySentToday])

	// Regular milestones still fire afterwards.
	env.setDay(t, "2025-03-24")
	assert.Equal(t, 1, env.sweep(t, false).Created)
	assert.Equal(t, 2, env.countNotifications(t, rem.ID))
}

func TestSweep_RentalWindow(t *testing.T) {
	env := newTestEnv(t, "2025-04-01")
	owner := env.addUser(t, model.RoleUser)
	rem := env.createReminder(t, env.addObligation(t, model.ObligationRental, "2025-04-10", ownedBy(owner.ID)))
	assert.Equal(t, "2025-04-03", model.DayKey(rem.ReminderDate))

	fired := []string{}
	for d := date(t, "2025-04-01"); !d.After(date(t, "2025-04-12")); d = d.AddDate(0, 0, 1) {
		day := model.DayKey(d)
		env.setDay(t, day)
		if env.sweep(t, false).Created == 1 {
			fired = append(fired, day)
		}
	}
	assert.Equal(t, []string{"2025-04-03", "2025-04-07", "2025-04-08", "2025-04-09", "2025-04-10"}, fired)
	assert.Len(t, env.notificationsFor(t, owner.ID), 5)
}

func TestSweep_MaterializesMissingReminders(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	owner := env.addUser(t, model.RoleUser)
	soon := env.addObligation(t, model.ObligationCalibration, "2025-03-31", ownedBy(owner.ID))
	env.addObligation(t, model.ObligationCalibration, "2025-06-30", ownedBy(owner.ID))

	report := env.sweep(t, false)
	assert.Equal(t, 1, report.Materialized)
	assert.Equal(t, 1, report.Created)

	rems, err := env.reminders.List(context.Background(), repository.ReminderFilter{ObligationID: soon.ID})
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, 30, rems[0].LeadDays)

	again := env.sweep(t, false)
	assert.Zero(t, again.Materialized)
}

func TestSweep_ConcurrentSweepsFireOnce(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	for i := 0; i < 3; i++ {
		env.addUser(t, model.RoleAdmin)
	}
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, env.createReminder(t, env.addObligation(t, model.ObligationCalibration, "2025-03-31")).ID)
	}

	const workers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := env.sweeper.Sweep(context.Background(), SweepOptions{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			created += report.Created
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, len(ids), created)
	for _, id := range ids {
		assert.Equal(t, 3, env.countNotifications(t, id))
	}
}

type recordingCourier struct {
	mu    sync.Mutex
	sent  []int64
	fails bool
}

func (c *recordingCourier) Deliver(_ context.Context, user model.User, _ model.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails {
		return errors.New("telegram unavailable")
	}
	c.sent = append(c.sent, user.TelegramChatID)
	return nil
}

func TestSweep_CourierDelivery(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	linked := model.User{ID: "linked", Name: "linked", Role: model.RoleAdmin, TelegramChatID: 4242}
	require.NoError(t, env.users.Upsert(context.Background(), &linked))
	env.addUser(t, model.RoleAdmin)
	rem := env.createReminder(t, env.addObligation(t, model.ObligationCalibration, "2025-03-31"))

	courier := &recordingCourier{}
	sweeper := NewSweeper(env.svc, env.fanout, courier, zap.NewNop())
	report, err := sweeper.Sweep(context.Background(), SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Notifications)
	assert.Equal(t, []int64{4242}, courier.sent)

	stored := env.reload(t, rem.ID)
	assert.True(t, stored.EmailSent)
	assert.NotNil(t, stored.EmailSentAt)
}

func TestSweep_CourierFailureKeepsNotification(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	linked := model.User{ID: "linked", Name: "linked", Role: model.RoleAdmin, TelegramChatID: 4242}
	require.NoError(t, env.users.Upsert(context.Background(), &linked))
	rem := env.createReminder(t, env.addObligation(t, model.ObligationCalibration, "2025-03-31"))

	sweeper := NewSweeper(env.svc, env.fanout, &recordingCourier{fails: true}, zap.NewNop())
	report, err := sweeper.Sweep(context.Background(), SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Empty(t, report.Errors)

	stored := env.reload(t, rem.ID)
	assert.Equal(t, model.StatusSent, stored.Status)
	assert.False(t, stored.EmailSent)
	assert.Equal(t, 1, env.countNotifications(t, rem.ID))
}

func TestSweep_ShorterLeadForSameRecipientIsCovered(t *testing.T) {
	env := newTestEnv(t, "2025-03-24")
	ctx := context.Background()
	owner := env.addUser(t, model.RoleUser)
	other := env.addUser(t, model.RoleUser)
	ob := env.addObligation(t, model.ObligationCalibration, "2025-03-31", ownedBy(owner.ID))

	seven, one := 7, 1
	primary := env.createReminder(t, ob)
	sameTrack, created, err := env.svc.Create(ctx, CreateReminderInput{Type: ob.Kind, ObligationID: ob.ID, LeadDays: &seven})
	require.NoError(t, err)
	require.True(t, created)
	otherTrack, created, err := env.svc.Create(ctx, CreateReminderInput{Type: ob.Kind, ObligationID: ob.ID, LeadDays: &one, UserID: other.ID})
	require.NoError(t, err)
	require.True(t, created)

	report := env.sweep(t, false)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.SkipReasons[SkipCoveredByLongerLead])
	assert.Empty(t, report.Errors)
	assert.Len(t, env.notificationsFor(t, owner.ID), 1)
	assert.Equal(t, model.StatusPending, env.reload(t, sameTrack.ID).Status)

	// Once the longer track is acknowledged the shorter one takes over.
	// A different recipient is never covered.
	_, err = env.svc.Acknowledge(ctx, primary.ID)
	require.NoError(t, err)
	env.setDay(t, "2025-03-30")
	report = env.sweep(t, false)
	assert.Equal(t, 2, report.Created)
	assert.Zero(t, report.SkipReasons[SkipCoveredByLongerLead])
	assert.Len(t, env.notificationsFor(t, owner.ID), 2)
	assert.Len(t, env.notificationsFor(t, other.ID), 1)
	assert.Equal(t, model.StatusSent, env.reload(t, sameTrack.ID).Status)
	assert.Equal(t, model.StatusSent, env.reload(t, otherTrack.ID).Status)
}

func TestLongestLeads(t *testing.T) {
	due := date(t, "2025-03-31")
	rems := []model.Reminder{
		{ID: "a", ObligationID: "ob", DueDate: due, LeadDays: 30, UserID: "u1", Status: model.StatusSent},
		{ID: "b", ObligationID: "ob", DueDate: due, LeadDays: 7, UserID: "u1", Status: model.StatusPending},
		{ID: "c", ObligationID: "ob", DueDate: due, LeadDays: 1, RecipientRole: model.RoleAdmin, Status: model.StatusPending},
	}
	longest := longestLeads(rems)
	assert.Equal(t, 30, longest[trackKey(rems[1])])
	assert.Equal(t, 1, longest[trackKey(rems[2])])
}
