package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	StatusNew           = "New"
	StatusCancelled     = "Cancelled"
	StatusLateCancelled = "Late_cancelled"
)

type Room struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID         int64 `bun:"id,pk,autoincrement"`
	LocationID int64 `bun:"location_id,notnull"`
}

// PersonalBooking is an ad-hoc calendar entry. Timestamps are kept in their
// stored text form and decoded by the civiltime package.
type PersonalBooking struct {
	bun.BaseModel `bun:"table:personal_bookings,alias:pb"`

	ID        int64   `bun:"id,pk,autoincrement"`
	UserID    *int64  `bun:"user_id"`
	UserIDs   []int64 `bun:"user_ids,array"`
	StartTime string  `bun:"start_time"`
	EndTime   string  `bun:"end_time"`
}

// Attendees returns user_id and user_ids merged, without duplicates.
func (b PersonalBooking) Attendees() []int64 {
	out := make([]int64, 0, len(b.UserIDs)+1)
	seen := make(map[int64]struct{}, len(b.UserIDs)+1)
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if b.UserID != nil {
		add(*b.UserID)
	}
	for _, id := range b.UserIDs {
		add(id)
	}
	return out
}

// StandardBooking is a trainer/client session with an implicit fixed length.
type StandardBooking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID         int64     `bun:"id,pk,autoincrement"`
	SeriesID   uuid.UUID `bun:"series_id,type:uuid,nullzero"`
	TrainerID  int64     `bun:"trainer_id,notnull"`
	UserID     *int64    `bun:"user_id"`
	RoomID     *int64    `bun:"room_id"`
	LocationID *int64    `bun:"location_id"`
	StartTime  string    `bun:"start_time"`
	Status     string    `bun:"status,notnull"`
}

// IsCancelled reports whether the status releases the slot.
func IsCancelled(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case strings.ToLower(StatusCancelled), strings.ToLower(StatusLateCancelled):
		return true
	}
	return false
}

// CancelledStatuses are the lowercase statuses excluded from every busy query.
func CancelledStatuses() []string {
	return []string{strings.ToLower(StatusCancelled), strings.ToLower(StatusLateCancelled)}
}
