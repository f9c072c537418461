package http

import (
	"errors"
	"log/slog"
	nethttp "net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
	"studio/backend/internal/service/availability"
	"studio/backend/internal/store"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	idempotencyHeaderAlt = "X-Idempotency-Key"
)

type bookingsHandler struct {
	svc availabilityService
	log *slog.Logger
}

func newBookingsHandler(svc availabilityService, log *slog.Logger) *bookingsHandler {
	return &bookingsHandler{
		svc: svc,
		log: log.With(slog.String("component", "http.bookings")),
	}
}

func (h *bookingsHandler) checkRepeat(c *gin.Context) {
	log := h.log.With(slog.String("route", "check-repeat"))

	var req checkRepeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, log, bindingMessage(err))
		return
	}

	results, err := h.svc.CheckRepeat(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, log, err, slog.Int64("trainer_id", req.TrainerID))
		return
	}

	log.Debug("repeat checked",
		slog.Int64("trainer_id", req.TrainerID),
		slog.Int64("location_id", req.LocationID),
		slog.Int("weeks", len(results)),
	)
	c.JSON(nethttp.StatusOK, gin.H{"success": true, "repeatedBookings": results})
}

type availabilityResponse struct {
	Success bool `json:"success"`
	availability.ConflictResult
}

func (h *bookingsHandler) checkAvailability(c *gin.Context) {
	log := h.log.With(slog.String("route", "check-availability"))

	var req checkAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, log, bindingMessage(err))
		return
	}

	result, err := h.svc.CheckAvailability(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, log, err, slog.Int64("trainer_id", req.TrainerID))
		return
	}
	c.JSON(nethttp.StatusOK, availabilityResponse{Success: true, ConflictResult: result})
}

type busyBlockView struct {
	Start     int     `json:"start"`
	End       int     `json:"end"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	OwnerIDs  []int64 `json:"ownerIds"`
}

func (h *bookingsHandler) busyBlocks(c *gin.Context) {
	log := h.log.With(slog.String("route", "busy-blocks"))

	var q busyBlocksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, log, bindingMessage(err))
		return
	}
	userIDs, err := parseUserIDs(q.UserIDs)
	if err != nil {
		h.badRequest(c, log, err.Error())
		return
	}
	date, _ := civil.ParseDate(q.Date)

	blocks, err := h.svc.BusyBlocks(c.Request.Context(), date, userIDs, q.IgnorePersonalBookingID)
	if err != nil {
		h.fail(c, log, err, slog.String("date", q.Date))
		return
	}

	out := make([]busyBlockView, 0, len(blocks.Intervals))
	for _, b := range blocks.Intervals {
		out = append(out, busyBlockView{
			Start:     b.Start,
			End:       b.End,
			StartTime: civiltime.FormatClock(b.Start),
			EndTime:   civiltime.FormatClock(b.End),
			OwnerIDs:  b.OwnerIDs,
		})
	}
	resp := gin.H{"success": true, "busyBlocks": out}
	if blocks.Skipped > 0 {
		resp["skippedRecords"] = blocks.Skipped
	}
	c.JSON(nethttp.StatusOK, resp)
}

type bookingView struct {
	ID         int64  `json:"id"`
	TrainerID  int64  `json:"trainerId"`
	UserID     *int64 `json:"userId"`
	RoomID     *int64 `json:"roomId"`
	LocationID *int64 `json:"locationId"`
	StartTime  string `json:"startTime"`
	Status     string `json:"status"`
}

func toBookingView(b domain.StandardBooking) bookingView {
	return bookingView{
		ID:         b.ID,
		TrainerID:  b.TrainerID,
		UserID:     b.UserID,
		RoomID:     b.RoomID,
		LocationID: b.LocationID,
		StartTime:  b.StartTime,
		Status:     b.Status,
	}
}

func (h *bookingsHandler) reserveRepeated(c *gin.Context) {
	log := h.log.With(slog.String("route", "repeat"))

	var req checkRepeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, log, bindingMessage(err))
		return
	}

	res, err := h.svc.ReserveRepeated(c.Request.Context(), availability.ReserveInput{
		CheckRepeatInput: req.input(),
		IdempotencyKey:   idempotencyKey(c),
	})
	if err != nil {
		var conflict *availability.ConflictError
		if errors.As(err, &conflict) {
			log.Info("repeat reservation conflict",
				slog.Int64("trainer_id", req.TrainerID),
				slog.Int64("location_id", req.LocationID),
				slog.String("date", req.Date),
				slog.String("time", req.Time),
			)
			c.JSON(nethttp.StatusConflict, gin.H{
				"error":            "One or more weeks are already taken. Pick a different time.",
				"repeatedBookings": conflict.Results,
			})
			return
		}
		h.fail(c, log, err, slog.Int64("trainer_id", req.TrainerID))
		return
	}

	bookings := make([]bookingView, 0, len(res.Bookings))
	for _, b := range res.Bookings {
		bookings = append(bookings, toBookingView(b))
	}

	status := nethttp.StatusCreated
	if res.Replayed {
		status = nethttp.StatusOK
	}
	c.JSON(status, gin.H{
		"success":          true,
		"seriesId":         res.SeriesID.String(),
		"replayed":         res.Replayed,
		"bookings":         bookings,
		"repeatedBookings": res.Results,
	})
}

func idempotencyKey(c *gin.Context) string {
	key := c.GetHeader(idempotencyHeader)
	if key == "" {
		key = c.GetHeader(idempotencyHeaderAlt)
	}
	return strings.TrimSpace(key)
}

func (h *bookingsHandler) badRequest(c *gin.Context, log *slog.Logger, msg string) {
	log.Warn("invalid request", slog.String("reason", msg))
	c.JSON(nethttp.StatusBadRequest, gin.H{"error": msg})
}

// fail maps service errors onto status codes.
func (h *bookingsHandler) fail(c *gin.Context, log *slog.Logger, err error, attrs ...any) {
	var vErr *availability.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", append(attrs, slog.Any("err", err))...)
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", attrs...)
		c.JSON(nethttp.StatusConflict, gin.H{"error": "This request key was already used for a different booking. Try again."})
	case errors.Is(err, store.ErrConflict):
		log.Info("booking conflict", attrs...)
		c.JSON(nethttp.StatusConflict, gin.H{"error": "That time is already taken. Pick a different slot."})
	default:
		log.Error("request failed", append(attrs, slog.Any("err", err))...)
		c.JSON(nethttp.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
