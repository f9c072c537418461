package http

import (
	"context"
	"log/slog"
	nethttp "net/http"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"studio/backend/internal/service/availability"
)

type availabilityService interface {
	CheckRepeat(ctx context.Context, in availability.CheckRepeatInput) ([]availability.ConflictResult, error)
	CheckAvailability(ctx context.Context, in availability.CheckAvailabilityInput) (availability.ConflictResult, error)
	BusyBlocks(ctx context.Context, date civil.Date, userIDs []int64, ignorePersonalBookingID *int64) (availability.BusyBlocks, error)
	ReserveRepeated(ctx context.Context, in availability.ReserveInput) (availability.Reservation, error)
}

type RouterOptions struct {
	// CORSOrigins lists allowed origins; "*" allows any. Empty disables CORS.
	CORSOrigins []string

	// RateLimitPerMinute is the per-client request budget. Zero disables it.
	RateLimitPerMinute int
}

func NewRouter(svc availabilityService, log *slog.Logger, opts RouterOptions) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	registerValidations()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(log.With(slog.String("component", "http"))))
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	}
	if opts.RateLimitPerMinute > 0 {
		r.Use(newRateLimiter(opts.RateLimitPerMinute).middleware(log))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{"status": "ok"})
	})

	h := newBookingsHandler(svc, log)
	bookings := r.Group("/bookings")
	{
		bookings.POST("/check-repeat", h.checkRepeat)
		bookings.POST("/check-availability", h.checkAvailability)
		bookings.POST("/repeat", h.reserveRepeated)
	}
	r.GET("/busy-blocks", h.busyBlocks)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
