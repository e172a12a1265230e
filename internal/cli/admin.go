package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"equipment-reminders/internal/model"
)

// UserOptions holds flags for user add.
type UserOptions struct {
	*RootOptions
	ID     string
	Name   string
	Email  string
	Role   string
	ChatID int64
}

// NewUserCommand manages notification recipients.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage notification recipients",
	}
	cmd.AddCommand(newUserAddCommand(rootOpts))
	return cmd
}

func newUserAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.RootOptions, appOptions{})
			if err != nil {
				return wrapExitError(ExitCommandError, "failed to start", err)
			}
			defer a.Close()

			user := &model.User{
				ID:             opts.ID,
				Name:           opts.Name,
				Email:          opts.Email,
				Role:           strings.ToUpper(strings.TrimSpace(opts.Role)),
				TelegramChatID: opts.ChatID,
			}
			if err := a.users.Upsert(cmd.Context(), user); err != nil {
				return wrapExitError(ExitCommandError, "failed to save user", err)
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "user id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Role, "role", model.RoleUser, "role used for role-wide reminders")
	cmd.Flags().Int64Var(&opts.ChatID, "telegram-chat", 0, "linked Telegram chat id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// ObligationOptions holds flags for obligation add.
type ObligationOptions struct {
	*RootOptions
	Kind      string
	Title     string
	Due       string
	Owner     string
	Role      string
	Frequency string
}

// NewObligationCommand records tracked deadlines. Obligations normally come
// from the asset tracker sharing the database; this is for operators and
// local setups.
func NewObligationCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obligation",
		Short: "Manage tracked obligations",
	}
	cmd.AddCommand(newObligationAddCommand(rootOpts))
	return cmd
}

func newObligationAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ObligationOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an obligation and create its reminder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ob, err := opts.obligation()
			if err != nil {
				return wrapExitError(ExitCommandError, "invalid obligation", err)
			}

			a, err := newApp(cmd.Context(), opts.RootOptions, appOptions{})
			if err != nil {
				return wrapExitError(ExitCommandError, "failed to start", err)
			}
			defer a.Close()

			if err := a.obligations.Create(cmd.Context(), ob); err != nil {
				return wrapExitError(ExitCommandError, "failed to save obligation", err)
			}
			rem, _, err := a.reminders.EnsureReminder(cmd.Context(), *ob)
			if err != nil {
				return wrapExitError(ExitCommandError, "failed to create reminder", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"obligation": ob,
				"reminder":   rem,
			})
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "CALIBRATION, RENTAL, MAINTENANCE or SCHEDULE")
	cmd.Flags().StringVar(&opts.Title, "title", "", "human readable subject")
	cmd.Flags().StringVar(&opts.Due, "due", "", "due date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owning user id")
	cmd.Flags().StringVar(&opts.Role, "role", "", "notify every user with this role instead of the owner")
	cmd.Flags().StringVar(&opts.Frequency, "every", "", "MONTHLY or YEARLY for recurring obligations")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func (o *ObligationOptions) obligation() (*model.Obligation, error) {
	kind, ok := model.ParseObligationType(o.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", o.Kind)
	}
	due, err := model.ParseDay(o.Due)
	if err != nil {
		return nil, fmt.Errorf("due: %w", err)
	}
	freq, err := model.ParseFrequency(o.Frequency)
	if err != nil {
		return nil, err
	}
	return &model.Obligation{
		Kind:        kind,
		Title:       o.Title,
		DueDate:     &due,
		OwnerUserID: o.Owner,
		NotifyRole:  strings.ToUpper(strings.TrimSpace(o.Role)),
		IsRecurring: freq != model.FrequencyNone,
		Frequency:   freq,
	}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
