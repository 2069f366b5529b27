package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/ErlanBelekov/newsletter/internal/transport/http/handler"
	"github.com/ErlanBelekov/newsletter/internal/transport/http/middleware"
)

const healthCheckPath = "/health_check"

// NewRouter wires the public routes. Admin routes are mounted only when
// both adminHandler and adminKey are set.
func NewRouter(logger *slog.Logger, subscriptions *handler.SubscriptionHandler, adminHandler *handler.AdminHandler, adminKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		Filters:          []sloggin.Filter{sloggin.IgnorePath(healthCheckPath)},
	}))
	r.Use(middleware.Metrics(healthCheckPath))

	r.GET(healthCheckPath, handler.HealthCheck)

	r.POST("/subscriptions", subscriptions.Subscribe)
	r.GET("/subscriptions/confirm", subscriptions.Confirm)

	if adminHandler != nil && len(adminKey) > 0 {
		admin := r.Group("/admin", middleware.AdminAuth(adminKey))
		admin.GET("/subscribers", adminHandler.GetSubscriber)
	}

	return r
}
