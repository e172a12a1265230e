package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipment-reminders/internal/model"
	"equipment-reminders/internal/repository"
	"equipment-reminders/internal/service"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	msg := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, sentMessage{chatID: msg.ChatID, text: msg.Text})
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeUsers struct {
	byID map[string]*model.User
}

func (f *fakeUsers) FindByTelegramChat(_ context.Context, chatID int64) (*model.User, error) {
	for _, u := range f.byID {
		if u.TelegramChatID == chatID {
			return u, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakeUsers) LinkTelegram(_ context.Context, userID string, chatID int64) (*model.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return nil, errors.New("record not found")
	}
	u.TelegramChatID = chatID
	return u, nil
}

type fakeReminders struct {
	items map[string]*model.Reminder
	today time.Time
}

func (f *fakeReminders) Get(_ context.Context, id string) (*model.Reminder, error) {
	rem, ok := f.items[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return rem, nil
}

func (f *fakeReminders) SentFor(_ context.Context, user model.User) ([]model.Reminder, error) {
	var out []model.Reminder
	for _, id := range []string{"r1", "r2", "r3"} {
		rem, ok := f.items[id]
		if ok && rem.Status == model.StatusSent && addressedTo(*rem, user) {
			out = append(out, *rem)
		}
	}
	return out, nil
}

func (f *fakeReminders) Acknowledge(_ context.Context, id string) (*repository.AckOutcome, error) {
	rem := f.items[id]
	if rem.Status == model.StatusAcknowledged {
		return &repository.AckOutcome{Reminder: *rem}, nil
	}
	rem.Status = model.StatusAcknowledged
	return &repository.AckOutcome{Reminder: *rem, Changed: true}, nil
}

func (f *fakeReminders) Today() time.Time { return f.today }

func command(chatID int64, text string) *tgbotapi.Message {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func newTestBot() (*Bot, *fakeSender, *fakeUsers, *fakeReminders) {
	due := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	users := &fakeUsers{byID: map[string]*model.User{
		"u1": {ID: "u1", Name: "Ada <Lab>", Role: model.RoleTechnician},
		"u2": {ID: "u2", Name: "Bob", Role: model.RoleUser, TelegramChatID: 200},
	}}
	reminders := &fakeReminders{
		today: time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC),
		items: map[string]*model.Reminder{
			"r1": {ID: "r1", Type: model.ObligationCalibration, DueDate: due, Status: model.StatusSent, RecipientRole: model.RoleTechnician},
			"r2": {ID: "r2", Type: model.ObligationRental, DueDate: due, Status: model.StatusSent, UserID: "u2"},
		},
	}
	out := &fakeSender{}
	return newBot(out, users, reminders, nil), out, users, reminders
}

func TestDeliver(t *testing.T) {
	b, out, _, _ := newTestBot()
	n := model.Notification{Title: "Calibration due in 7 days", Message: `Calibration for "Scope <A>" is due in 7 days (2025-03-31).`, ReminderID: "r1", Milestone: 7}

	require.NoError(t, b.Deliver(context.Background(), model.User{ID: "u2", TelegramChatID: 200}, n))
	msg := out.last(t)
	assert.Equal(t, int64(200), msg.chatID)
	assert.Contains(t, msg.text, "<b>Calibration due in 7 days</b>")
	assert.Contains(t, msg.text, "Scope &lt;A&gt;")
	assert.Contains(t, msg.text, "/ack r1")

	assert.ErrorIs(t, b.Deliver(context.Background(), model.User{ID: "u1"}, n), ErrNotLinked)

	out.err = errors.New("network down")
	assert.Error(t, b.Deliver(context.Background(), model.User{ID: "u2", TelegramChatID: 200}, n))
}

func TestFormatNotification_Icons(t *testing.T) {
	assert.Contains(t, FormatNotification(model.Notification{Title: "x", Milestone: 30}), iconDefault)
	assert.Contains(t, FormatNotification(model.Notification{Title: "x", Milestone: 1}), iconDue)
	assert.Contains(t, FormatNotification(model.Notification{Title: "x", Milestone: 0}), iconDue)
	assert.Contains(t, FormatNotification(model.Notification{Title: "x", Milestone: -2}), iconOverdue)
}

func TestStartLinksChat(t *testing.T) {
	b, out, users, _ := newTestBot()
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command(100, "/start u1")))
	assert.Equal(t, int64(100), users.byID["u1"].TelegramChatID)
	assert.Contains(t, out.last(t).text, "Ada &lt;Lab&gt;")

	require.NoError(t, b.handleMessage(ctx, command(100, "/start")))
	assert.Contains(t, out.last(t).text, "already receives")

	require.NoError(t, b.handleMessage(ctx, command(300, "/start nobody")))
	assert.Contains(t, out.last(t).text, "Could not find")
}

func TestRemindersCommand(t *testing.T) {
	b, out, _, _ := newTestBot()
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command(200, "/reminders")))
	text := out.last(t).text
	assert.Contains(t, text, "RENTAL")
	assert.Contains(t, text, "7 days left")
	assert.NotContains(t, text, "r1")

	require.NoError(t, b.handleMessage(ctx, command(999, "/reminders")))
	assert.Contains(t, out.last(t).text, "not connected")
}

func TestAckCommand(t *testing.T) {
	b, out, _, reminders := newTestBot()
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command(200, "/ack r1")))
	assert.Contains(t, out.last(t).text, "not found")
	assert.Equal(t, model.StatusSent, reminders.items["r1"].Status)

	require.NoError(t, b.handleMessage(ctx, command(200, "/ack r2")))
	assert.Contains(t, out.last(t).text, "Acknowledged")
	assert.Equal(t, model.StatusAcknowledged, reminders.items["r2"].Status)

	require.NoError(t, b.handleMessage(ctx, command(200, "/ack r2")))
	assert.Contains(t, out.last(t).text, "Already acknowledged")

	require.NoError(t, b.handleMessage(ctx, command(200, "/ack missing")))
	assert.Contains(t, out.last(t).text, "not found")

	require.NoError(t, b.handleMessage(ctx, command(200, "/ack")))
	assert.Contains(t, out.last(t).text, "Usage")
}

func TestNonCommand(t *testing.T) {
	b, out, _, _ := newTestBot()
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 200, Type: "private"}, Text: "hello"}
	require.NoError(t, b.handleMessage(context.Background(), msg))
	assert.Contains(t, out.last(t).text, "/help")
}

func TestHelp_ListsSchedules(t *testing.T) {
	b, out, _, _ := newTestBot()
	require.NoError(t, b.handleMessage(context.Background(), command(200, "/help")))
	text := out.last(t).text
	assert.Contains(t, text, "/ack")
	assert.Contains(t, text, "CALIBRATION: 30d before, 7d before, 1d before")
	assert.Contains(t, text, "RENTAL: 7d before, then daily from 3d before")
	assert.Contains(t, text, "SCHEDULE: on the due date")
}
