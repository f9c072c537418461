package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
	"studio/backend/internal/store"
)

const maxIdempotencyKeyLen = 256

type ReserveInput struct {
	CheckRepeatInput
	IdempotencyKey string
}

type Reservation struct {
	SeriesID uuid.UUID
	Bookings []domain.StandardBooking
	Results  []ConflictResult
	Replayed bool
}

// ConflictError is returned when at least one week of a reservation is not
// free. Results carries the full per-week plan.
type ConflictError struct {
	Results []ConflictResult
}

func (e *ConflictError) Error() string {
	n := 0
	for _, r := range e.Results {
		if r.Conflict {
			n++
		}
	}
	return fmt.Sprintf("%d of %d weeks conflict", n, len(e.Results))
}

func (e *ConflictError) Unwrap() error {
	return store.ErrConflict
}

// ReserveRepeated books one session per week when every week is free.
// The check and the inserts run under the location's calendar lock.
func (s *Service) ReserveRepeated(ctx context.Context, in ReserveInput) (Reservation, error) {
	req, err := s.normalize(in.CheckRepeatInput)
	if err != nil {
		return Reservation{}, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return Reservation{}, validationError("idempotency_key is too long")
	}
	seriesID, err := seriesIDFor(req.trainerID, key)
	if err != nil {
		return Reservation{}, err
	}

	started := time.Now()
	var out Reservation
	err = s.repo.InLocationTransaction(ctx, req.locationID, func(ctx context.Context, tx store.BookingTx) error {
		existing, err := tx.ListSeriesBookings(ctx, seriesID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			if !matchesSeries(existing, req) {
				return store.ErrIdempotencyConflict
			}
			out = Reservation{SeriesID: seriesID, Bookings: existing, Replayed: true}
			return nil
		}

		// One connection backs the transaction, so weeks are planned serially.
		plans, pool, err := s.engine(tx).planRepeated(ctx, req, 1)
		if err != nil {
			return err
		}
		results := resultsOf(plans)
		if hasConflict(results) {
			return &ConflictError{Results: results}
		}

		bookings := make([]domain.StandardBooking, 0, len(plans))
		for i, p := range plans {
			roomID, ok := domain.FreeRoom(req.slot(p.result.Date), p.rooms, pool)
			if !ok {
				results[i].Conflict = true
				return &ConflictError{Results: results}
			}
			b, err := tx.CreateStandardBooking(ctx, store.NewStandardBooking{
				SeriesID:   seriesID,
				TrainerID:  req.trainerID,
				UserID:     req.userID,
				RoomID:     roomID,
				LocationID: req.locationID,
				StartTime:  civiltime.At(p.result.Date, req.start),
				Status:     domain.StatusNew,
			})
			if err != nil {
				return err
			}
			bookings = append(bookings, b)
		}
		out = Reservation{SeriesID: seriesID, Bookings: bookings, Results: results}
		return nil
	})
	s.metrics.ObservePlan("reserve_repeated", time.Since(started), err)

	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.metrics.ObserveResults("reserve_repeated", conflict.Results)
			return Reservation{Results: conflict.Results}, err
		}
		return Reservation{}, err
	}

	if out.Replayed {
		s.log.Info("reservation replayed", slog.String("series_id", seriesID.String()), slog.Int("bookings", len(out.Bookings)))
	} else {
		s.metrics.ObserveResults("reserve_repeated", out.Results)
		s.log.Info("reservation created", slog.String("series_id", seriesID.String()), slog.Int("bookings", len(out.Bookings)))
	}
	return out, nil
}

func seriesIDFor(trainerID int64, key string) (uuid.UUID, error) {
	if key == "" {
		return uuid.NewV7()
	}
	name := "studio:reserve_repeated:" + strconv.FormatInt(trainerID, 10) + ":" + key
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)), nil
}

// matchesSeries reports whether a stored series is the one req would create.
func matchesSeries(existing []domain.StandardBooking, req planRequest) bool {
	occs, err := domain.GenerateWeeklyOccurrences(req.date, req.weeks)
	if err != nil || len(occs) != len(existing) {
		return false
	}
	for i, b := range existing {
		if b.TrainerID != req.trainerID || !sameUser(b.UserID, req.userID) {
			return false
		}
		if b.LocationID != nil && *b.LocationID != req.locationID {
			return false
		}
		start, err := civiltime.Parse(b.StartTime)
		if err != nil {
			return false
		}
		if civiltime.DateOf(start) != occs[i].Date || civiltime.MinutesOn(start, occs[i].Date) != req.start {
			return false
		}
	}
	return true
}

func sameUser(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
