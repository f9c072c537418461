package store

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
)

// DayWindow is one Stockholm calendar day as an instant range [Start, End).
type DayWindow struct {
	Date  civil.Date
	Start time.Time
	End   time.Time
}

func NewDayWindow(d civil.Date) DayWindow {
	start, end := civiltime.DayBounds(d)
	return DayWindow{Date: d, Start: start, End: end}
}

// PersonalBookingFilter selects ad-hoc bookings whose user_id or user_ids
// intersects UserIDs. IgnoreID excludes one booking, used when an edited
// booking is re-checked against the calendar.
type PersonalBookingFilter struct {
	UserIDs  []int64
	IgnoreID *int64
}

// StandardBookingFilter selects non-cancelled standard bookings starting in
// the window. UserIDs matches trainer_id or user_id, RoomIDs matches room_id.
// With LocationID set, rows without a room at that location also match
// RoomIDs. Empty lists do not restrict.
type StandardBookingFilter struct {
	UserIDs    []int64
	RoomIDs    []int64
	LocationID *int64
}

type BookingReader interface {
	ListActiveRoomIDs(ctx context.Context, locationID int64) ([]int64, error)
	ListPersonalBookings(ctx context.Context, window DayWindow, filter PersonalBookingFilter) ([]domain.PersonalBooking, error)
	ListStandardBookings(ctx context.Context, window DayWindow, filter StandardBookingFilter) ([]domain.StandardBooking, error)
}

// BookingTx is a BookingReader bound to a transaction that also holds the
// location lock.
type BookingTx interface {
	BookingReader

	CreateStandardBooking(ctx context.Context, b NewStandardBooking) (domain.StandardBooking, error)
	ListSeriesBookings(ctx context.Context, seriesID uuid.UUID) ([]domain.StandardBooking, error)
}

type BookingRepository interface {
	BookingReader

	// InLocationTransaction runs fn in a transaction serialized against every
	// other writer for the same location.
	InLocationTransaction(ctx context.Context, locationID int64, fn func(ctx context.Context, tx BookingTx) error) error
}

type NewStandardBooking struct {
	SeriesID   uuid.UUID
	TrainerID  int64
	UserID     *int64
	RoomID     int64
	LocationID int64
	StartTime  time.Time
	Status     string
}
