package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
	"studio/backend/internal/store"
)

const (
	pgUniqueViolation = "23505"

	standardBookingColumns = "b.id, b.series_id, b.trainer_id, b.user_id, b.room_id, b.location_id, b.status"
)

type BookingRepo struct {
	reader
	db *bun.DB
}

func NewBookingRepo(db *bun.DB, caps store.Capabilities) *BookingRepo {
	return &BookingRepo{
		reader: reader{db: db, caps: caps},
		db:     db,
	}
}

// reader runs the read queries against either the pool or a transaction.
type reader struct {
	db   bun.IDB
	caps store.Capabilities
}

type bookingTx struct {
	reader
	tx bun.Tx
}

func (r reader) ListActiveRoomIDs(ctx context.Context, locationID int64) ([]int64, error) {
	var ids []int64
	q := r.db.NewSelect().
		Model((*domain.Room)(nil)).
		ColumnExpr("r.id").
		Where("r.location_id = ?", locationID).
		OrderExpr("r.id ASC")
	if r.caps.RoomActiveColumn {
		q = q.Where("r.is_active")
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("list rooms for location %d: %w", locationID, err)
	}
	return ids, nil
}

func (r reader) ListPersonalBookings(ctx context.Context, window store.DayWindow, filter store.PersonalBookingFilter) ([]domain.PersonalBooking, error) {
	if len(filter.UserIDs) == 0 {
		return nil, nil
	}

	var rows []domain.PersonalBooking
	q := r.db.NewSelect().
		Model(&rows).
		ColumnExpr("pb.id, pb.user_id, pb.user_ids").
		ColumnExpr("pb.start_time::text AS start_time").
		ColumnExpr("pb.end_time::text AS end_time").
		Where("pb.start_time < ?", window.End).
		Where("pb.end_time > ?", window.Start).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("pb.user_id IN (?)", bun.In(filter.UserIDs)).
				WhereOr("pb.user_ids && ?::bigint[]", pgdialect.Array(filter.UserIDs))
		}).
		OrderExpr("pb.start_time ASC, pb.id ASC")
	if filter.IgnoreID != nil {
		q = q.Where("pb.id <> ?", *filter.IgnoreID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list personal bookings on %s: %w", window.Date, err)
	}
	return rows, nil
}

func (r reader) ListStandardBookings(ctx context.Context, window store.DayWindow, filter store.StandardBookingFilter) ([]domain.StandardBooking, error) {
	var rows []domain.StandardBooking
	q := r.db.NewSelect().
		Model(&rows).
		ColumnExpr(standardBookingColumns).
		ColumnExpr("b.start_time::text AS start_time").
		Where("b.start_time >= ?", window.Start).
		Where("b.start_time < ?", window.End).
		Where("lower(b.status) NOT IN (?)", bun.In(domain.CancelledStatuses())).
		OrderExpr("b.start_time ASC, b.id ASC")
	if len(filter.UserIDs) > 0 {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("b.trainer_id IN (?)", bun.In(filter.UserIDs)).
				WhereOr("b.user_id IN (?)", bun.In(filter.UserIDs))
		})
	}
	if len(filter.RoomIDs) > 0 {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Where("b.room_id IN (?)", bun.In(filter.RoomIDs))
			if filter.LocationID != nil {
				q = q.WhereOr("b.room_id IS NULL AND b.location_id = ?", *filter.LocationID)
			}
			return q
		})
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list standard bookings on %s: %w", window.Date, err)
	}
	return rows, nil
}

func (r *BookingRepo) InLocationTransaction(ctx context.Context, locationID int64, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockLocationCalendar(ctx, tx, locationID); err != nil {
			return err
		}
		return fn(ctx, bookingTx{reader: reader{db: tx, caps: r.caps}, tx: tx})
	})
}

func lockLocationCalendar(ctx context.Context, tx bun.Tx, locationID int64) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", locationLockKey(locationID)).Exec(ctx)
	return err
}

func locationLockKey(locationID int64) string {
	return "studio:location:" + strconv.FormatInt(locationID, 10)
}

type bookingInsert struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         int64     `bun:"id,pk,autoincrement"`
	SeriesID   uuid.UUID `bun:"series_id,type:uuid,nullzero"`
	TrainerID  int64     `bun:"trainer_id,notnull"`
	UserID     *int64    `bun:"user_id"`
	RoomID     int64     `bun:"room_id,notnull"`
	LocationID int64     `bun:"location_id,notnull"`
	StartTime  time.Time `bun:"start_time,notnull"`
	Status     string    `bun:"status,notnull"`
}

func (t bookingTx) CreateStandardBooking(ctx context.Context, b store.NewStandardBooking) (domain.StandardBooking, error) {
	m := bookingInsert{
		SeriesID:   b.SeriesID,
		TrainerID:  b.TrainerID,
		UserID:     b.UserID,
		RoomID:     b.RoomID,
		LocationID: b.LocationID,
		StartTime:  b.StartTime.UTC(),
		Status:     b.Status,
	}
	if m.Status == "" {
		m.Status = domain.StatusNew
	}

	_, err := t.tx.NewInsert().Model(&m).Returning("id").Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.StandardBooking{}, store.ErrIdempotencyConflict
		}
		return domain.StandardBooking{}, err
	}

	return toStandardBooking(m), nil
}

func (t bookingTx) ListSeriesBookings(ctx context.Context, seriesID uuid.UUID) ([]domain.StandardBooking, error) {
	var rows []domain.StandardBooking
	err := t.tx.NewSelect().
		Model(&rows).
		ColumnExpr(standardBookingColumns).
		ColumnExpr("b.start_time::text AS start_time").
		Where("b.series_id = ?", seriesID).
		OrderExpr("b.start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series %s: %w", seriesID, err)
	}
	return rows, nil
}

func toStandardBooking(m bookingInsert) domain.StandardBooking {
	roomID := m.RoomID
	locationID := m.LocationID
	return domain.StandardBooking{
		ID:         m.ID,
		SeriesID:   m.SeriesID,
		TrainerID:  m.TrainerID,
		UserID:     m.UserID,
		RoomID:     &roomID,
		LocationID: &locationID,
		StartTime:  m.StartTime.In(civiltime.Stockholm).Format(time.RFC3339),
		Status:     m.Status,
	}
}
