package availability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
	"studio/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Options struct {
	MaxRepeatWeeks        int
	WeekConcurrency       int
	DefaultCheckUsersBusy bool
}

func DefaultOptions() Options {
	return Options{
		MaxRepeatWeeks:        52,
		WeekConcurrency:       4,
		DefaultCheckUsersBusy: true,
	}
}

type Service struct {
	repo    store.BookingRepository
	opts    Options
	metrics *Metrics
	log     *slog.Logger
}

func NewService(repo store.BookingRepository, opts Options, metrics *Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxRepeatWeeks < 1 {
		opts.MaxRepeatWeeks = DefaultOptions().MaxRepeatWeeks
	}
	if opts.WeekConcurrency < 1 {
		opts.WeekConcurrency = 1
	}
	return &Service{
		repo:    repo,
		opts:    opts,
		metrics: metrics,
		log:     log.With(slog.String("component", "availability")),
	}
}

type CheckRepeatInput struct {
	Date        civil.Date
	TrainerID   int64
	LocationID  int64
	Time        string
	RepeatWeeks int

	// CheckUsersBusy defaults to Options.DefaultCheckUsersBusy when nil.
	CheckUsersBusy          *bool
	UserID                  *int64
	IgnorePersonalBookingID *int64
}

// ConflictResult is the verdict for one week of a repeated booking.
type ConflictResult struct {
	Week           int        `json:"week"`
	Date           civil.Date `json:"date"`
	Time           string     `json:"time"`
	Conflict       bool       `json:"conflict"`
	SuggestedTimes []string   `json:"suggestedTimes"`
	SkippedRecords int        `json:"skippedRecords,omitempty"`
}

type planRequest struct {
	date           civil.Date
	trainerID      int64
	locationID     int64
	start          int
	clock          string
	weeks          int
	checkUsersBusy bool
	userID         *int64
	ignorePersonal *int64
}

func (r planRequest) slot(date civil.Date) domain.CandidateSlot {
	return domain.NewSessionSlot(date, r.start)
}

func (s *Service) normalize(in CheckRepeatInput) (planRequest, error) {
	if in.Date == (civil.Date{}) {
		return planRequest{}, validationError("date is required")
	}
	if !in.Date.IsValid() {
		return planRequest{}, validationError("date is invalid")
	}
	if in.TrainerID <= 0 {
		return planRequest{}, validationError("trainerId is required")
	}
	if in.LocationID <= 0 {
		return planRequest{}, validationError("locationId is required")
	}

	clock := strings.TrimSpace(in.Time)
	if clock == "" {
		return planRequest{}, validationError("time is required")
	}
	start, err := civiltime.ParseClock(clock)
	if err != nil {
		return planRequest{}, validationError("time must be HH:MM")
	}
	if start+domain.SessionMinutes > civiltime.MinutesPerDay {
		return planRequest{}, validationError("session must end before midnight")
	}

	if in.RepeatWeeks == 0 {
		return planRequest{}, validationError("repeatWeeks is required")
	}
	if in.RepeatWeeks < 0 || in.RepeatWeeks > s.opts.MaxRepeatWeeks {
		return planRequest{}, validationError(fmt.Sprintf("repeatWeeks must be between 1 and %d", s.opts.MaxRepeatWeeks))
	}
	if in.UserID != nil && *in.UserID <= 0 {
		return planRequest{}, validationError("userId must be positive")
	}

	checkUsersBusy := s.opts.DefaultCheckUsersBusy
	if in.CheckUsersBusy != nil {
		checkUsersBusy = *in.CheckUsersBusy
	}

	return planRequest{
		date:           in.Date,
		trainerID:      in.TrainerID,
		locationID:     in.LocationID,
		start:          start,
		clock:          civiltime.FormatClock(start),
		weeks:          in.RepeatWeeks,
		checkUsersBusy: checkUsersBusy,
		userID:         in.UserID,
		ignorePersonal: in.IgnorePersonalBookingID,
	}, nil
}

func (s *Service) engine(r store.BookingReader) *engine {
	return &engine{reader: r, metrics: s.metrics, log: s.log}
}

// CheckRepeat evaluates the same weekly time over RepeatWeeks consecutive
// weeks. Results are week-ascending.
func (s *Service) CheckRepeat(ctx context.Context, in CheckRepeatInput) ([]ConflictResult, error) {
	req, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	plans, _, err := s.engine(s.repo).planRepeated(ctx, req, s.opts.WeekConcurrency)
	s.metrics.ObservePlan("check_repeat", time.Since(started), err)
	if err != nil {
		return nil, err
	}

	results := resultsOf(plans)
	s.metrics.ObserveResults("check_repeat", results)
	return results, nil
}

type CheckAvailabilityInput struct {
	Date                    civil.Date
	TrainerID               int64
	LocationID              int64
	Time                    string
	CheckUsersBusy          *bool
	UserID                  *int64
	IgnorePersonalBookingID *int64
}

// CheckAvailability is a single-date check.
func (s *Service) CheckAvailability(ctx context.Context, in CheckAvailabilityInput) (ConflictResult, error) {
	req, err := s.normalize(CheckRepeatInput{
		Date:                    in.Date,
		TrainerID:               in.TrainerID,
		LocationID:              in.LocationID,
		Time:                    in.Time,
		RepeatWeeks:             1,
		CheckUsersBusy:          in.CheckUsersBusy,
		UserID:                  in.UserID,
		IgnorePersonalBookingID: in.IgnorePersonalBookingID,
	})
	if err != nil {
		return ConflictResult{}, err
	}

	started := time.Now()
	plans, _, err := s.engine(s.repo).planRepeated(ctx, req, 1)
	s.metrics.ObservePlan("check_availability", time.Since(started), err)
	if err != nil {
		return ConflictResult{}, err
	}

	results := resultsOf(plans)
	s.metrics.ObserveResults("check_availability", results)
	return results[0], nil
}

// BusyBlocks returns the busy intervals of userIDs on date.
func (s *Service) BusyBlocks(ctx context.Context, date civil.Date, userIDs []int64, ignorePersonalBookingID *int64) (BusyBlocks, error) {
	if date == (civil.Date{}) {
		return BusyBlocks{}, validationError("date is required")
	}
	if !date.IsValid() {
		return BusyBlocks{}, validationError("date is invalid")
	}
	return s.engine(s.repo).fetchBusyBlocks(ctx, date, userIDs, busyOptions{ignorePersonalBookingID: ignorePersonalBookingID})
}

func resultsOf(plans []weekPlan) []ConflictResult {
	out := make([]ConflictResult, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.result)
	}
	return out
}

func hasConflict(results []ConflictResult) bool {
	for _, r := range results {
		if r.Conflict {
			return true
		}
	}
	return false
}
