package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/domain"
	"studio/backend/internal/store"
)

func TestPostgresIntegration_BusyQueriesAndSeriesInsert(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("STUDIO_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("STUDIO_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "studio_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day := civil.Date{Year: 2026, Month: time.March, Day: 20}
	at := func(hour, minute int) time.Time { return civiltime.At(day, hour*60+minute) }

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema).Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}

		seed := []string{
			"INSERT INTO rooms (id, location_id, is_active) VALUES (1, 10, TRUE), (2, 10, TRUE), (3, 10, FALSE), (4, 11, TRUE)",
		}
		for _, stmt := range seed {
			if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
		if _, err := tx.NewRaw(
			"INSERT INTO personal_bookings (user_id, user_ids, start_time, end_time) VALUES (NULL, ARRAY[5,9]::bigint[], ?, ?), (7, NULL, ?, ?), (9, NULL, ?, ?)",
			at(8, 0), at(9, 0),
			at(12, 0), at(13, 0),
			at(23, 30), day.AddDays(1).In(civiltime.Stockholm).Add(time.Hour),
		).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw(
			"INSERT INTO bookings (trainer_id, user_id, room_id, start_time, status) VALUES (1, 5, 1, ?, 'New'), (1, 6, 2, ?, 'CANCELLED'), (2, 9, 2, ?, 'Late_cancelled'), (2, NULL, 2, ?, 'Done')",
			at(10, 0), at(11, 0), at(12, 0), day.AddDays(1).In(civiltime.Stockholm).Add(10*time.Hour),
		).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw(
			"INSERT INTO bookings (trainer_id, room_id, location_id, start_time, status) VALUES (3, NULL, 10, ?, 'New'), (4, NULL, 11, ?, 'New')",
			at(15, 0), at(16, 0),
		).Exec(ctx); err != nil {
			return err
		}

		caps, err := DetectCapabilities(ctx, tx, CapabilityAuto)
		if err != nil {
			return err
		}
		if !caps.RoomActiveColumn {
			return fmt.Errorf("rooms.is_active not detected")
		}

		r := reader{db: tx, caps: caps}
		window := store.NewDayWindow(day)

		rooms, err := r.ListActiveRoomIDs(ctx, 10)
		if err != nil {
			return err
		}
		if len(rooms) != 2 || rooms[0] != 1 || rooms[1] != 2 {
			return fmt.Errorf("rooms = %v, want [1 2]", rooms)
		}

		personal, err := r.ListPersonalBookings(ctx, window, store.PersonalBookingFilter{UserIDs: []int64{9}})
		if err != nil {
			return err
		}
		if len(personal) != 2 {
			return fmt.Errorf("len(personal) = %d, want 2", len(personal))
		}
		if _, ok := civiltime.StockholmMinutes(personal[0].StartTime); !ok {
			return fmt.Errorf("start_time %q not parsable", personal[0].StartTime)
		}
		if len(personal[0].UserIDs) != 2 {
			return fmt.Errorf("user_ids = %v, want [5 9]", personal[0].UserIDs)
		}

		ignore := personal[0].ID
		personal, err = r.ListPersonalBookings(ctx, window, store.PersonalBookingFilter{UserIDs: []int64{9}, IgnoreID: &ignore})
		if err != nil {
			return err
		}
		if len(personal) != 1 {
			return fmt.Errorf("len(personal) with ignore = %d, want 1", len(personal))
		}

		standard, err := r.ListStandardBookings(ctx, window, store.StandardBookingFilter{UserIDs: []int64{1, 9}})
		if err != nil {
			return err
		}
		if len(standard) != 1 || standard[0].TrainerID != 1 {
			return fmt.Errorf("standard = %+v, want only the non-cancelled booking", standard)
		}

		byRoom, err := r.ListStandardBookings(ctx, window, store.StandardBookingFilter{RoomIDs: rooms})
		if err != nil {
			return err
		}
		if len(byRoom) != 1 {
			return fmt.Errorf("len(byRoom) = %d, want 1", len(byRoom))
		}

		location := int64(10)
		byLocation, err := r.ListStandardBookings(ctx, window, store.StandardBookingFilter{RoomIDs: rooms, LocationID: &location})
		if err != nil {
			return err
		}
		if len(byLocation) != 2 || byLocation[1].RoomID != nil || byLocation[1].TrainerID != 3 {
			return fmt.Errorf("byLocation = %+v, want the room 1 booking and the unassigned one at location 10", byLocation)
		}

		btx := bookingTx{reader: r, tx: tx}
		seriesID := uuid.MustParse("00000000-0000-0000-0000-000000000901")
		userID := int64(5)
		created, err := btx.CreateStandardBooking(ctx, store.NewStandardBooking{
			SeriesID:   seriesID,
			TrainerID:  1,
			UserID:     &userID,
			RoomID:     2,
			LocationID: 10,
			StartTime:  at(14, 0),
		})
		if err != nil {
			return err
		}
		if created.ID == 0 || created.Status != domain.StatusNew {
			return fmt.Errorf("created = %+v", created)
		}

		if _, err := tx.NewRaw("SAVEPOINT duplicate_series").Exec(ctx); err != nil {
			return err
		}
		_, err = btx.CreateStandardBooking(ctx, store.NewStandardBooking{
			SeriesID:   seriesID,
			TrainerID:  1,
			RoomID:     1,
			LocationID: 10,
			StartTime:  at(14, 0),
		})
		if err != store.ErrIdempotencyConflict {
			return fmt.Errorf("duplicate series err = %v, want %v", err, store.ErrIdempotencyConflict)
		}
		if _, err := tx.NewRaw("ROLLBACK TO SAVEPOINT duplicate_series").Exec(ctx); err != nil {
			return err
		}

		series, err := btx.ListSeriesBookings(ctx, seriesID)
		if err != nil {
			return err
		}
		if len(series) != 1 || series[0].ID != created.ID {
			return fmt.Errorf("series = %+v", series)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		stmts := splitSQLStatements(upSQL)
		for _, stmt := range stmts {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
