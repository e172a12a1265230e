package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"equipment-reminders/internal/bot"
	"equipment-reminders/internal/clock"
	"equipment-reminders/internal/config"
	"equipment-reminders/internal/handler"
	"equipment-reminders/internal/logger"
	"equipment-reminders/internal/repository"
	"equipment-reminders/internal/service"
	"equipment-reminders/internal/triggercache"
)

// app holds the wired engine for one command invocation.
type app struct {
	cfg config.Config
	log *zap.Logger
	db  *gorm.DB

	users         *repository.UserRepository
	obligations   *repository.ObligationRepository
	reminders     *service.ReminderService
	notifications *service.NotificationService
	sweeper       *service.Sweeper
	toasts        triggercache.Store
	bot           *bot.Bot

	closers []func() error
}

type appOptions struct {
	// withBot connects to Telegram when a token is configured.
	withBot bool
	// withToasts builds the trigger cache backend.
	withToasts bool
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if opts.Database != "" {
		cfg.DatabaseURL = opts.Database
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts *RootOptions, ao appOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	clk := clock.System()
	loc := cfg.Location()

	a.users = repository.NewUserRepository(db)
	a.obligations = repository.NewObligationRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	a.reminders = service.NewReminderService(reminderRepo, a.obligations, clk, loc, cfg.DefaultRole, log)
	a.notifications = service.NewNotificationService(repository.NewNotificationRepository(db), reminderRepo, clk, loc, log)

	var courier service.Courier
	if ao.withBot && cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken, a.users, a.reminders, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.bot = b
		courier = b
	}
	a.sweeper = service.NewSweeper(a.reminders, service.NewFanOut(a.users), courier, log)

	if ao.withToasts {
		switch cfg.TriggerCache {
		case "redis":
			client, err := triggercache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisCacheDB)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.closers = append(a.closers, client.Close)
			a.toasts = triggercache.NewRedisStore(client, clk, loc)
		default:
			a.toasts = triggercache.NewMemoryStore(clk, loc)
		}
	}

	return a, nil
}

func (a *app) handlers() *handler.HandlerBundle {
	return &handler.HandlerBundle{
		Reminders:     a.reminders,
		Notifications: a.notifications,
		Sweeper:       a.sweeper,
		Toasts:        a.toasts,
		Ping: func() error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
		Log: a.log,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
