package api

import (
	"qrdrop/internal/server/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = NewRenderer()

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Secure())
	e.Use(Metrics())
	e.Use(RequestLogger())

	// Health & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Upload form (rate-limited on submit)
	e.GET("/", handler.HandleIndex)
	e.POST("/", handler.HandleUpload, NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// Stored files and archives
	e.GET("/uploads/:filename", handler.HandleUploaded)
	e.HEAD("/uploads/:filename", handler.HandleUploaded)
	e.GET("/zips/:filename", handler.HandleArchive)
	e.HEAD("/zips/:filename", handler.HandleArchive)

	return e
}
