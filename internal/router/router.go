package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/config"
	"github.com/iliyamo/vehicle-rental-bot/internal/handler"
	"github.com/iliyamo/vehicle-rental-bot/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth    *handler.AuthHandler
	Channel *handler.ChannelHandler
	Webhook *handler.PaymentWebhook
	Catalog *handler.CatalogHandler
	Staff   *handler.StaffHandler
	Ready   echo.HandlerFunc
}

// Options carries the middleware configuration.  Redis may be nil, which
// disables rate limiting and caching.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
	Log       *zap.Logger
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", handler.Health)
	if h.Ready != nil {
		e.GET("/readyz", h.Ready)
	}
}

// RegisterChannel mounts the inbound chat webhook behind the per-contact
// rate limiter, and the payment gateway webhook.
func RegisterChannel(e *echo.Echo, h Handlers, o Options) {
	e.POST("/v1/channel/events", h.Channel.Event, middleware.RateLimit(o.RateLimit, o.Redis, o.Log))
	e.POST("/v1/payments/stripe/webhook", h.Webhook.Stripe)
}

// RegisterCatalog mounts the cached, read-only catalog endpoints.
func RegisterCatalog(e *echo.Echo, h Handlers, o Options) {
	g := e.Group("/v1/catalog", middleware.ResponseCache(o.Cache, o.Redis, o.Log))
	g.GET("/locations", h.Catalog.Locations)
	g.GET("/extras", h.Catalog.Extras)
}

// RegisterAuth registers the staff token endpoints under /v1/auth and the
// protected staff operations under /v1/staff.
func RegisterAuth(e *echo.Echo, h Handlers, o Options) {
	g := e.Group("/v1/auth")
	g.POST("/login", h.Auth.Login)
	g.POST("/refresh", h.Auth.Refresh)
	g.POST("/logout", h.Auth.Logout)

	staff := e.Group("/v1/staff")
	staff.Use(middleware.StaffAuth(o.JWTSecret))
	staff.Use(middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin))
	staff.GET("/me", h.Auth.Me)
	staff.GET("/reservations/:id", h.Staff.Get)
	staff.POST("/reservations/:id/pickup", h.Staff.Pickup)
	staff.POST("/reservations/:id/return", h.Staff.Return)
	staff.POST("/reservations/:id/cancel", h.Staff.Cancel)
	staff.POST("/payments/:intent/result", h.Staff.PaymentResult)
}

// Register mounts every route group.
func Register(e *echo.Echo, h Handlers, o Options) {
	RegisterRoutes(e, h)
	RegisterChannel(e, h, o)
	RegisterCatalog(e, h, o)
	RegisterAuth(e, h, o)
}
