package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"equipment-reminders/internal/handler"
	"equipment-reminders/internal/middleware"
)

// RegisterReminderRoutes registers reminder and sweep endpoints.
func RegisterReminderRoutes(api *gin.RouterGroup, hb *handler.HandlerBundle, cronLimiter *middleware.RateLimiter) {
	reminders := api.Group("/reminders")
	{
		reminders.POST("", hb.CreateReminderHandler)
		reminders.GET("", hb.ListRemindersHandler)
		reminders.PATCH("/:id", hb.UpdateReminderHandler)
	}
	api.POST("/cron/reminders", cronLimiter.Middleware(hb.Log), hb.RunSweepHandler)
	api.POST("/obligations/:kind/:id/complete", hb.CompleteObligationHandler)
}

// RegisterNotificationRoutes registers inbox and toast endpoints.
func RegisterNotificationRoutes(api *gin.RouterGroup, hb *handler.HandlerBundle) {
	api.GET("/users/:id/notifications", hb.ListNotificationsHandler)
	api.PATCH("/notifications/:id/read", hb.MarkNotificationReadHandler)
	api.GET("/obligations/:kind/:id/notifications", hb.ObligationNotificationsHandler)
	api.GET("/sessions/:session/toasts", hb.ToastsHandler)
}

// SetupRouter builds the HTTP engine.
func SetupRouter(hb *handler.HandlerBundle, cronRatePerMin int) *gin.Engine {
	log := hb.Log
	if log == nil {
		log = zap.NewNop()
		hb.Log = log
	}

	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", hb.HealthHandler)

	api := r.Group("/api")
	RegisterReminderRoutes(api, hb, middleware.NewRateLimiter(cronRatePerMin))
	RegisterNotificationRoutes(api, hb)
	return r
}
