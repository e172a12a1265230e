package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"equipment-reminders/internal/routes"
	"equipment-reminders/internal/service"
)

const shutdownGrace = 10 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduled sweeper and the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts)
		},
	}
}

func runServe(cmd *cobra.Command, rootOpts *RootOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, rootOpts, appOptions{withBot: true, withToasts: true})
	if err != nil {
		return wrapExitError(ExitCommandError, "failed to start", err)
	}
	defer a.Close()
	log := a.log

	scheduler := service.NewSchedulerService(a.cfg.Location(), log)
	if _, err := scheduler.ScheduleSweep(a.cfg.SweepSpec, a.cfg.SweepTimeout, a.sweeper, log); err != nil {
		return wrapExitError(ExitCommandError, "invalid SWEEP_SPEC", err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Info("Sweeper scheduled", zap.String("spec", a.cfg.SweepSpec), zap.Times("next", scheduler.Entries()))

	if a.bot != nil {
		go func() {
			if err := a.bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("bot stopped with error", zap.Error(err))
			}
		}()
	} else {
		log.Info("TELEGRAM_TOKEN not set, out-of-band delivery disabled")
	}

	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + a.cfg.AppPort,
		Handler:           routes.SetupRouter(a.handlers(), a.cfg.CronRatePerMin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return wrapExitError(ExitCommandError, "server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Shutdown complete")
	return nil
}
