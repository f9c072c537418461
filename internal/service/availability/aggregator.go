package availability

import (
	"context"
	"log/slog"
	"sort"

	"cloud.google.com/go/civil"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
	"studio/backend/internal/store"
)

const (
	sourcePersonal = "personal_bookings"
	sourceStandard = "bookings"
)

// BusyBlocks is the merged busy set of a group of users on one day.
// Skipped counts rows dropped because their timestamps could not be read.
type BusyBlocks struct {
	Intervals []domain.BusyInterval
	Skipped   int
}

type busyOptions struct {
	ignorePersonalBookingID *int64
	personalOnly            bool
}

type engine struct {
	reader  store.BookingReader
	metrics *Metrics
	log     *slog.Logger
}

func (e *engine) fetchBusyBlocks(ctx context.Context, date civil.Date, userIDs []int64, opts busyOptions) (BusyBlocks, error) {
	ids := normalizeUserIDs(userIDs)
	out := BusyBlocks{Intervals: []domain.BusyInterval{}}
	if len(ids) == 0 {
		return out, nil
	}

	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	window := store.NewDayWindow(date)

	personal, err := e.reader.ListPersonalBookings(ctx, window, store.PersonalBookingFilter{
		UserIDs:  ids,
		IgnoreID: opts.ignorePersonalBookingID,
	})
	if err != nil {
		return BusyBlocks{}, err
	}
	for _, pb := range personal {
		owners := intersectIDs(pb.Attendees(), wanted)
		if len(owners) == 0 {
			continue
		}
		start, end, ok := personalSpan(pb, date)
		if !ok {
			out.Skipped++
			e.dropped(sourcePersonal, pb.ID)
			continue
		}
		if end <= start {
			continue
		}
		out.Intervals = append(out.Intervals, domain.BusyInterval{Start: start, End: end, OwnerIDs: owners})
	}

	if !opts.personalOnly {
		standard, err := e.reader.ListStandardBookings(ctx, window, store.StandardBookingFilter{UserIDs: ids})
		if err != nil {
			return BusyBlocks{}, err
		}
		for _, sb := range standard {
			if domain.IsCancelled(sb.Status) {
				continue
			}
			owners := standardOwners(sb, wanted)
			if len(owners) == 0 {
				continue
			}
			start, end, ok := standardSpan(sb, date)
			if !ok {
				out.Skipped++
				e.dropped(sourceStandard, sb.ID)
				continue
			}
			if end <= start {
				continue
			}
			out.Intervals = append(out.Intervals, domain.BusyInterval{Start: start, End: end, OwnerIDs: owners})
		}
	}

	domain.SortIntervals(out.Intervals)
	return out, nil
}

// roomOccupancy loads the standard bookings held in the pool's rooms, plus
// the location's bookings that have no room yet.
func (e *engine) roomOccupancy(ctx context.Context, date civil.Date, locationID int64, pool []int64) ([]domain.RoomOccupancy, int, error) {
	rows, err := e.reader.ListStandardBookings(ctx, store.NewDayWindow(date), store.StandardBookingFilter{
		RoomIDs:    pool,
		LocationID: &locationID,
	})
	if err != nil {
		return nil, 0, err
	}

	skipped := 0
	out := make([]domain.RoomOccupancy, 0, len(rows))
	for _, sb := range rows {
		if domain.IsCancelled(sb.Status) {
			continue
		}
		start, end, ok := standardSpan(sb, date)
		if !ok {
			skipped++
			e.dropped(sourceStandard, sb.ID)
			continue
		}
		if end <= start {
			continue
		}
		out = append(out, domain.RoomOccupancy{RoomID: sb.RoomID, Start: start, End: end})
	}
	return out, skipped, nil
}

func (e *engine) dropped(source string, id int64) {
	e.log.Warn("booking dropped from busy set", slog.String("source", source), slog.Int64("booking_id", id), slog.String("reason", "unparsable_time"))
	e.metrics.IncSkipped(source)
}

func personalSpan(pb domain.PersonalBooking, date civil.Date) (int, int, bool) {
	startT, err := civiltime.Parse(pb.StartTime)
	if err != nil {
		return 0, 0, false
	}
	endT, err := civiltime.Parse(pb.EndTime)
	if err != nil {
		return 0, 0, false
	}
	return civiltime.MinutesOn(startT, date), civiltime.MinutesOn(endT, date), true
}

func standardSpan(sb domain.StandardBooking, date civil.Date) (int, int, bool) {
	startT, err := civiltime.Parse(sb.StartTime)
	if err != nil {
		return 0, 0, false
	}
	start := civiltime.MinutesOn(startT, date)
	return start, min(start+domain.SessionMinutes, civiltime.MinutesPerDay), true
}

func standardOwners(sb domain.StandardBooking, wanted map[int64]struct{}) []int64 {
	var owners []int64
	if _, ok := wanted[sb.TrainerID]; ok {
		owners = append(owners, sb.TrainerID)
	}
	if sb.UserID != nil && *sb.UserID != sb.TrainerID {
		if _, ok := wanted[*sb.UserID]; ok {
			owners = append(owners, *sb.UserID)
		}
	}
	return owners
}

func intersectIDs(ids []int64, wanted map[int64]struct{}) []int64 {
	var out []int64
	for _, id := range ids {
		if _, ok := wanted[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// normalizeUserIDs drops non-positive IDs and duplicates, sorted ascending.
func normalizeUserIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
