package availability

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
)

type weekPlan struct {
	result ConflictResult
	rooms  []domain.RoomOccupancy
}

// weekSnapshot holds everything a slot on one date is checked against.
type weekSnapshot struct {
	rooms   []domain.RoomOccupancy
	trainer []domain.BusyInterval
	trainee []domain.BusyInterval
	skipped int
}

func (w weekSnapshot) feasible(slot domain.CandidateSlot, poolSize int) bool {
	if !domain.RoomsAvailable(slot, w.rooms, poolSize) {
		return false
	}
	if domain.ConflictsWith(slot, w.trainer) {
		return false
	}
	return !domain.ConflictsWith(slot, w.trainee)
}

// planRepeated returns one plan per week, in week order, plus the room pool
// the weeks were checked against.
func (e *engine) planRepeated(ctx context.Context, req planRequest, concurrency int) ([]weekPlan, []int64, error) {
	occs, err := domain.GenerateWeeklyOccurrences(req.date, req.weeks)
	if err != nil {
		return nil, nil, validationError(err.Error())
	}

	pool, err := e.reader.ListActiveRoomIDs(ctx, req.locationID)
	if err != nil {
		return nil, nil, err
	}
	if len(pool) == 0 {
		return nil, nil, validationError("location has no active rooms")
	}

	if concurrency < 1 {
		concurrency = 1
	}
	plans := make([]weekPlan, len(occs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, occ := range occs {
		g.Go(func() error {
			p, err := e.planWeek(gctx, req, pool, occ)
			if err != nil {
				return fmt.Errorf("week %d (%s): %w", occ.Week, occ.Date, err)
			}
			plans[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return plans, pool, nil
}

func (e *engine) planWeek(ctx context.Context, req planRequest, pool []int64, occ domain.WeeklyOccurrence) (weekPlan, error) {
	snap, err := e.loadWeek(ctx, req, occ.Date, pool)
	if err != nil {
		return weekPlan{}, err
	}

	result := ConflictResult{
		Week:           occ.Week,
		Date:           occ.Date,
		Time:           req.clock,
		SuggestedTimes: []string{},
		SkippedRecords: snap.skipped,
	}
	if !snap.feasible(req.slot(occ.Date), len(pool)) {
		result.Conflict = true
		for _, m := range domain.SuggestionGrid {
			if snap.feasible(domain.NewSessionSlot(occ.Date, m), len(pool)) {
				result.SuggestedTimes = append(result.SuggestedTimes, civiltime.FormatClock(m))
			}
		}
	}
	return weekPlan{result: result, rooms: snap.rooms}, nil
}

func (e *engine) loadWeek(ctx context.Context, req planRequest, date civil.Date, pool []int64) (weekSnapshot, error) {
	var snap weekSnapshot

	rooms, skipped, err := e.roomOccupancy(ctx, date, req.locationID, pool)
	if err != nil {
		return weekSnapshot{}, err
	}
	snap.rooms = rooms
	snap.skipped += skipped

	// With checkUsersBusy off the trainer is only blocked by personal time;
	// their standard sessions still count through room occupancy.
	trainer, err := e.fetchBusyBlocks(ctx, date, []int64{req.trainerID}, busyOptions{
		ignorePersonalBookingID: req.ignorePersonal,
		personalOnly:            !req.checkUsersBusy,
	})
	if err != nil {
		return weekSnapshot{}, err
	}
	snap.trainer = domain.FilterOwner(trainer.Intervals, req.trainerID)
	snap.skipped += trainer.Skipped

	if req.checkUsersBusy && req.userID != nil {
		trainee, err := e.fetchBusyBlocks(ctx, date, []int64{*req.userID}, busyOptions{
			ignorePersonalBookingID: req.ignorePersonal,
		})
		if err != nil {
			return weekSnapshot{}, err
		}
		snap.trainee = domain.FilterOwner(trainee.Intervals, *req.userID)
		snap.skipped += trainee.Skipped
	}

	return snap, nil
}
