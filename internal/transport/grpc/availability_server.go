package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/service/availability"
	"studio/backend/internal/store"
)

type AvailabilityServer struct {
	svc availabilityService
	log *slog.Logger
}

type availabilityService interface {
	CheckRepeat(ctx context.Context, in availability.CheckRepeatInput) ([]availability.ConflictResult, error)
	CheckAvailability(ctx context.Context, in availability.CheckAvailabilityInput) (availability.ConflictResult, error)
	BusyBlocks(ctx context.Context, date civil.Date, userIDs []int64, ignorePersonalBookingID *int64) (availability.BusyBlocks, error)
	ReserveRepeated(ctx context.Context, in availability.ReserveInput) (availability.Reservation, error)
}

func NewAvailabilityServer(svc availabilityService, log *slog.Logger) *AvailabilityServer {
	if log == nil {
		log = slog.Default()
	}
	return &AvailabilityServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.availability")),
	}
}

type checkRepeatRequest struct {
	Date                    string `json:"date"`
	TrainerID               int64  `json:"trainerId"`
	LocationID              int64  `json:"locationId"`
	Time                    string `json:"time"`
	RepeatWeeks             int    `json:"repeatWeeks"`
	CheckUsersBusy          *bool  `json:"checkUsersBusy"`
	UserID                  *int64 `json:"userId"`
	IgnorePersonalBookingID *int64 `json:"ignorePersonalBookingId"`
}

func (r checkRepeatRequest) input(date civil.Date) availability.CheckRepeatInput {
	return availability.CheckRepeatInput{
		Date:                    date,
		TrainerID:               r.TrainerID,
		LocationID:              r.LocationID,
		Time:                    r.Time,
		RepeatWeeks:             r.RepeatWeeks,
		CheckUsersBusy:          r.CheckUsersBusy,
		UserID:                  r.UserID,
		IgnorePersonalBookingID: r.IgnorePersonalBookingID,
	}
}

func (s *AvailabilityServer) CheckRepeat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckRepeat"))

	var in checkRepeatRequest
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	date, err := parseDate(in.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "date"), slog.String("date", in.Date))
		return nil, err
	}

	results, err := s.svc.CheckRepeat(ctx, in.input(date))
	if err != nil {
		return nil, s.mapError(log, "repeat check", err, slog.Int64("trainer_id", in.TrainerID))
	}

	log.Debug("repeat checked", slog.Int64("trainer_id", in.TrainerID), slog.Int("weeks", len(results)))
	return encodeStruct(map[string]any{"success": true, "repeatedBookings": results})
}

func (s *AvailabilityServer) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckAvailability"))

	var in checkRepeatRequest
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	date, err := parseDate(in.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "date"), slog.String("date", in.Date))
		return nil, err
	}

	result, err := s.svc.CheckAvailability(ctx, availability.CheckAvailabilityInput{
		Date:                    date,
		TrainerID:               in.TrainerID,
		LocationID:              in.LocationID,
		Time:                    in.Time,
		CheckUsersBusy:          in.CheckUsersBusy,
		UserID:                  in.UserID,
		IgnorePersonalBookingID: in.IgnorePersonalBookingID,
	})
	if err != nil {
		return nil, s.mapError(log, "availability check", err, slog.Int64("trainer_id", in.TrainerID))
	}

	return encodeStruct(struct {
		Success bool `json:"success"`
		availability.ConflictResult
	}{Success: true, ConflictResult: result})
}

type busyBlocksRequest struct {
	Date                    string  `json:"date"`
	UserIDs                 []int64 `json:"userIds"`
	IgnorePersonalBookingID *int64  `json:"ignorePersonalBookingId"`
}

type busyBlock struct {
	Start     int     `json:"start"`
	End       int     `json:"end"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	OwnerIDs  []int64 `json:"ownerIds"`
}

func (s *AvailabilityServer) BusyBlocks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "BusyBlocks"))

	var in busyBlocksRequest
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	date, err := parseDate(in.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "date"), slog.String("date", in.Date))
		return nil, err
	}

	blocks, err := s.svc.BusyBlocks(ctx, date, in.UserIDs, in.IgnorePersonalBookingID)
	if err != nil {
		return nil, s.mapError(log, "busy blocks", err, slog.String("date", in.Date))
	}

	out := make([]busyBlock, 0, len(blocks.Intervals))
	for _, b := range blocks.Intervals {
		out = append(out, busyBlock{
			Start:     b.Start,
			End:       b.End,
			StartTime: civiltime.FormatClock(b.Start),
			EndTime:   civiltime.FormatClock(b.End),
			OwnerIDs:  b.OwnerIDs,
		})
	}

	log.Debug("busy blocks listed", slog.String("date", in.Date), slog.Int("count", len(out)))
	resp := map[string]any{"success": true, "busyBlocks": out}
	if blocks.Skipped > 0 {
		resp["skippedRecords"] = blocks.Skipped
	}
	return encodeStruct(resp)
}

type reservedBooking struct {
	ID         int64  `json:"id"`
	TrainerID  int64  `json:"trainerId"`
	UserID     *int64 `json:"userId"`
	RoomID     *int64 `json:"roomId"`
	LocationID *int64 `json:"locationId"`
	StartTime  string `json:"startTime"`
	Status     string `json:"status"`
}

func (s *AvailabilityServer) ReserveRepeated(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ReserveRepeated"))

	var in checkRepeatRequest
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	date, err := parseDate(in.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "date"), slog.String("date", in.Date))
		return nil, err
	}

	res, err := s.svc.ReserveRepeated(ctx, availability.ReserveInput{
		CheckRepeatInput: in.input(date),
		IdempotencyKey:   idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.mapError(log, "repeat reservation", err, slog.Int64("trainer_id", in.TrainerID), slog.String("date", in.Date))
	}

	bookings := make([]reservedBooking, 0, len(res.Bookings))
	for _, b := range res.Bookings {
		bookings = append(bookings, reservedBooking{
			ID:         b.ID,
			TrainerID:  b.TrainerID,
			UserID:     b.UserID,
			RoomID:     b.RoomID,
			LocationID: b.LocationID,
			StartTime:  b.StartTime,
			Status:     b.Status,
		})
	}

	log.Info("repeat reserved",
		slog.String("series_id", res.SeriesID.String()),
		slog.Int64("trainer_id", in.TrainerID),
		slog.Int("bookings", len(bookings)),
		slog.Bool("replayed", res.Replayed),
	)
	return encodeStruct(map[string]any{
		"success":          true,
		"seriesId":         res.SeriesID.String(),
		"replayed":         res.Replayed,
		"bookings":         bookings,
		"repeatedBookings": res.Results,
	})
}

func (s *AvailabilityServer) mapError(log *slog.Logger, op string, err error, attrs ...any) error {
	var vErr *availability.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	}
	var cErr *availability.ConflictError
	if errors.As(err, &cErr) {
		log.Info(op+" conflict", append(attrs, slog.String("detail", cErr.Error()))...)
		return status.Error(codes.FailedPrecondition, "One or more weeks are already taken. Pick a different time.")
	}
	if errors.Is(err, store.ErrIdempotencyConflict) {
		log.Info(op+" idempotency conflict", attrs...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different booking. Try again.")
	}
	if errors.Is(err, store.ErrConflict) {
		log.Info(op+" conflict", attrs...)
		return status.Error(codes.FailedPrecondition, "That time is already taken. Pick a different slot.")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn(op+" timed out", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}
	log.Error(op+" failed", append(attrs, slog.Any("err", err))...)
	return status.Error(codes.Internal, "internal error")
}

func parseDate(raw string) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Date{}, status.Error(codes.InvalidArgument, "date is required")
	}
	d, err := civil.ParseDate(raw)
	if err != nil || !d.IsValid() {
		return civil.Date{}, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}
	return d, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
