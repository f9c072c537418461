package availability

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
	"studio/backend/internal/store"
)

// fakeRepo filters in memory the way the postgres queries do. Rows whose
// times cannot be parsed are always returned so the caller has to cope.
type fakeRepo struct {
	rooms    map[int64][]int64
	personal []domain.PersonalBooking
	standard []domain.StandardBooking

	roomsErr    error
	personalErr error
	standardErr error
	insertErr   error

	mu             sync.Mutex
	personalCalls  int
	standardCalls  int
	lockedLocation []int64
	created        []store.NewStandardBooking
	nextID         int64
}

func (f *fakeRepo) ListActiveRoomIDs(ctx context.Context, locationID int64) ([]int64, error) {
	if f.roomsErr != nil {
		return nil, f.roomsErr
	}
	return append([]int64(nil), f.rooms[locationID]...), nil
}

func (f *fakeRepo) ListPersonalBookings(ctx context.Context, window store.DayWindow, filter store.PersonalBookingFilter) ([]domain.PersonalBooking, error) {
	f.mu.Lock()
	f.personalCalls++
	f.mu.Unlock()
	if f.personalErr != nil {
		return nil, f.personalErr
	}

	var out []domain.PersonalBooking
	for _, pb := range f.snapshotPersonal() {
		if filter.IgnoreID != nil && pb.ID == *filter.IgnoreID {
			continue
		}
		if !containsAny(pb.Attendees(), filter.UserIDs) {
			continue
		}
		start, errS := civiltime.Parse(pb.StartTime)
		end, errE := civiltime.Parse(pb.EndTime)
		if errS == nil && errE == nil && (!start.Before(window.End) || !end.After(window.Start)) {
			continue
		}
		out = append(out, pb)
	}
	return out, nil
}

func (f *fakeRepo) ListStandardBookings(ctx context.Context, window store.DayWindow, filter store.StandardBookingFilter) ([]domain.StandardBooking, error) {
	f.mu.Lock()
	f.standardCalls++
	f.mu.Unlock()
	if f.standardErr != nil {
		return nil, f.standardErr
	}

	var out []domain.StandardBooking
	for _, sb := range f.snapshotStandard() {
		if domain.IsCancelled(sb.Status) {
			continue
		}
		if len(filter.UserIDs) > 0 {
			ids := []int64{sb.TrainerID}
			if sb.UserID != nil {
				ids = append(ids, *sb.UserID)
			}
			if !containsAny(ids, filter.UserIDs) {
				continue
			}
		}
		if len(filter.RoomIDs) > 0 && !inRoomPool(sb, filter) {
			continue
		}
		if start, err := civiltime.Parse(sb.StartTime); err == nil && (start.Before(window.Start) || !start.Before(window.End)) {
			continue
		}
		out = append(out, sb)
	}
	return out, nil
}

func (f *fakeRepo) InLocationTransaction(ctx context.Context, locationID int64, fn func(ctx context.Context, tx store.BookingTx) error) error {
	f.mu.Lock()
	f.lockedLocation = append(f.lockedLocation, locationID)
	rollback := len(f.standard)
	createdBefore := len(f.created)
	f.mu.Unlock()

	if err := fn(ctx, fakeTx{f}); err != nil {
		f.mu.Lock()
		f.standard = f.standard[:rollback]
		f.created = f.created[:createdBefore]
		f.mu.Unlock()
		return err
	}
	return nil
}

type fakeTx struct {
	*fakeRepo
}

func (t fakeTx) CreateStandardBooking(ctx context.Context, b store.NewStandardBooking) (domain.StandardBooking, error) {
	if t.insertErr != nil {
		return domain.StandardBooking{}, t.insertErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	roomID, locationID := b.RoomID, b.LocationID
	row := domain.StandardBooking{
		ID:         1000 + t.nextID,
		SeriesID:   b.SeriesID,
		TrainerID:  b.TrainerID,
		UserID:     b.UserID,
		RoomID:     &roomID,
		LocationID: &locationID,
		StartTime:  b.StartTime.In(civiltime.Stockholm).Format("2006-01-02T15:04:05Z07:00"),
		Status:     b.Status,
	}
	t.standard = append(t.standard, row)
	t.created = append(t.created, b)
	return row, nil
}

func (t fakeTx) ListSeriesBookings(ctx context.Context, seriesID uuid.UUID) ([]domain.StandardBooking, error) {
	var out []domain.StandardBooking
	for _, sb := range t.snapshotStandard() {
		if sb.SeriesID == seriesID {
			out = append(out, sb)
		}
	}
	return out, nil
}

func (f *fakeRepo) snapshotPersonal() []domain.PersonalBooking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PersonalBooking(nil), f.personal...)
}

func (f *fakeRepo) snapshotStandard() []domain.StandardBooking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.StandardBooking(nil), f.standard...)
}

func containsAny(have, want []int64) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func inRoomPool(sb domain.StandardBooking, filter store.StandardBookingFilter) bool {
	if sb.RoomID == nil {
		return filter.LocationID != nil && sb.LocationID != nil && *sb.LocationID == *filter.LocationID
	}
	return containsAny([]int64{*sb.RoomID}, filter.RoomIDs)
}
