package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"equipment-reminders/internal/leadtime"
	"equipment-reminders/internal/model"
	"equipment-reminders/internal/repository"
	"equipment-reminders/internal/service"
)

const (
	iconDefault = "🟢"
	iconDue     = "🟠"
	iconOverdue = "🔴"
)

// ErrNotLinked is returned by Deliver for a user without a Telegram chat.
var ErrNotLinked = errors.New("user has no linked telegram chat")

// Users is the part of the user directory the bot needs.
type Users interface {
	FindByTelegramChat(ctx context.Context, chatID int64) (*model.User, error)
	LinkTelegram(ctx context.Context, userID string, chatID int64) (*model.User, error)
}

// Reminders is the part of the reminder service the bot needs.
type Reminders interface {
	Get(ctx context.Context, id string) (*model.Reminder, error)
	SentFor(ctx context.Context, user model.User) ([]model.Reminder, error)
	Acknowledge(ctx context.Context, id string) (*repository.AckOutcome, error)
	Today() time.Time
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot is the out-of-band delivery channel. It pushes fired notifications to
// linked chats and lets users list and acknowledge their reminders.
type Bot struct {
	api       *tgbotapi.BotAPI
	out       sender
	users     Users
	reminders Reminders
	log       *zap.Logger
}

func New(token string, users Users, reminders Reminders, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, users, reminders, log)
	b.api = api
	b.log.Info("bot authorized", zap.String("account", api.Self.UserName))
	return b, nil
}

func newBot(out sender, users Users, reminders Reminders, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{out: out, users: users, reminders: reminders, log: log.Named("bot")}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot has no api connection")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Warn("handle message", zap.Int64("chat_id", update.Message.Chat.ID), zap.Error(err))
		}
	}

	return nil
}

// Deliver sends n to the user's linked chat.
func (b *Bot) Deliver(_ context.Context, user model.User, n model.Notification) error {
	if user.TelegramChatID == 0 {
		return ErrNotLinked
	}
	return b.sendText(user.TelegramChatID, FormatNotification(n))
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only understand commands. Try /help.")
	}
	b.log.Debug("command", zap.Int64("chat_id", msg.Chat.ID), zap.String("command", msg.Command()))

	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "reminders":
		return b.handleReminders(ctx, msg)
	case "ack":
		return b.handleAck(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

// handleStart links the chat to the account id passed as the deep-link
// payload: t.me/<bot>?start=<user id>.
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	userID := strings.TrimSpace(msg.CommandArguments())
	if userID == "" {
		if user, err := b.users.FindByTelegramChat(ctx, msg.Chat.ID); err == nil {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("👋 Hi, %s! This chat already receives your reminders.", escape(user.Name)))
		}
		return b.sendText(msg.Chat.ID, "Open the link from your profile page to connect this chat.")
	}

	user, err := b.users.LinkTelegram(ctx, userID, msg.Chat.ID)
	if err != nil {
		b.log.Warn("link chat", zap.String("user_id", userID), zap.Error(err))
		return b.sendText(msg.Chat.ID, "Could not find that account. Check the link and try again.")
	}
	b.log.Info("chat linked", zap.String("user_id", user.ID), zap.Int64("chat_id", msg.Chat.ID))
	return b.sendText(msg.Chat.ID, fmt.Sprintf(
		"👋 Hi, %s!\n<b>Reminders for your equipment will arrive here.</b>\n\n"+
			"• /reminders — open reminders\n"+
			"• /ack &lt;id&gt; — acknowledge a reminder\n"+
			"• /help — this list",
		escape(user.Name)))
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	var sb strings.Builder
	sb.WriteString("ℹ️ <b>Commands</b>\n" +
		"• /start &lt;account id&gt; — connect this chat\n" +
		"• /reminders — reminders sent to you and not yet acknowledged\n" +
		"• /ack &lt;id&gt; — acknowledge a reminder\n\n" +
		"<b>When reminders arrive</b>\n")
	for _, t := range model.ObligationTypes() {
		sb.WriteString("• " + escape(t.String()) + ": " + scheduleText(t) + "\n")
	}
	return b.sendText(msg.Chat.ID, strings.TrimSuffix(sb.String(), "\n"))
}

// scheduleText describes the days before the due date on which t fires.
func scheduleText(t model.ObligationType) string {
	days := make([]string, 0, 4)
	for _, m := range leadtime.MilestonesFor(t) {
		if m == 0 {
			days = append(days, "on the due date")
			continue
		}
		days = append(days, strconv.Itoa(m)+"d before")
	}
	if leadtime.HasWindow(t) {
		days = append(days, "then daily from 3d before")
	}
	return strings.Join(days, ", ")
}

func (b *Bot) handleReminders(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.users.FindByTelegramChat(ctx, msg.Chat.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, "This chat is not connected yet. Use the link from your profile page.")
	}
	rems, err := b.reminders.SentFor(ctx, *user)
	if err != nil {
		return fmt.Errorf("list reminders for %s: %w", user.ID, err)
	}
	if len(rems) == 0 {
		return b.sendText(msg.Chat.ID, "✅ Nothing waiting for you.")
	}

	today := b.reminders.Today()
	var sb strings.Builder
	sb.WriteString("<b>Open reminders</b>\n\n")
	for _, rem := range rems {
		sb.WriteString(formatReminder(rem, today))
	}
	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleAck(ctx context.Context, msg *tgbotapi.Message) error {
	id := strings.TrimSpace(msg.CommandArguments())
	if id == "" {
		return b.sendText(msg.Chat.ID, "Usage: /ack &lt;id&gt;")
	}
	user, err := b.users.FindByTelegramChat(ctx, msg.Chat.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, "This chat is not connected yet. Use the link from your profile page.")
	}

	rem, err := b.reminders.Get(ctx, id)
	if errors.Is(err, service.ErrNotFound) || (err == nil && !addressedTo(*rem, *user)) {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Reminder <code>%s</code> not found.", escape(id)))
	}
	if err != nil {
		return fmt.Errorf("find reminder %s: %w", id, err)
	}

	out, err := b.reminders.Acknowledge(ctx, id)
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", id, err)
	}
	if !out.Changed {
		return b.sendText(msg.Chat.ID, "Already acknowledged.")
	}
	text := "✅ Acknowledged."
	if out.Successor != nil && out.Expanded {
		text += fmt.Sprintf(" Next check is due %s.", out.Successor.DueDate.Format(model.DayLayout))
	}
	return b.sendText(msg.Chat.ID, text)
}

func addressedTo(rem model.Reminder, user model.User) bool {
	if rem.RecipientRole != "" {
		return rem.RecipientRole == user.Role
	}
	return rem.UserID == user.ID
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.out.Send(msg)
	return err
}

func escape(s string) string {
	return html.EscapeString(s)
}

func icon(daysLeft int) string {
	switch {
	case daysLeft < 0:
		return iconOverdue
	case daysLeft <= 1:
		return iconDue
	default:
		return iconDefault
	}
}

// FormatNotification renders n as an HTML chat message.
func FormatNotification(n model.Notification) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b>\n", icon(n.Milestone), escape(n.Title)))
	if n.Message != "" {
		b.WriteString(escape(n.Message))
		b.WriteByte('\n')
	}
	if n.ReminderID != "" {
		b.WriteString(fmt.Sprintf("Acknowledge: <code>/ack %s</code>\n", escape(n.ReminderID)))
	}
	return b.String()
}

func formatReminder(rem model.Reminder, today time.Time) string {
	var b strings.Builder
	days := model.DaysUntil(today, rem.DueDate)
	b.WriteString(fmt.Sprintf("%s <b>%s</b> due %s", icon(days), rem.Type, rem.DueDate.Format(model.DayLayout)))
	switch {
	case days < 0:
		b.WriteString(" — <b>overdue</b>\n")
	case days == 0:
		b.WriteString(" · today\n")
	default:
		b.WriteString(" · " + strconv.Itoa(days) + " days left\n")
	}
	b.WriteString(fmt.Sprintf("   <code>/ack %s</code>\n\n", escape(rem.ID)))
	return b.String()
}
