package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"studio/backend/internal/store"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func Open(databaseURL string, pool PoolConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// CapabilityMode is the configured value of schema.room_active_column.
type CapabilityMode string

const (
	CapabilityAuto     CapabilityMode = "auto"
	CapabilityEnabled  CapabilityMode = "true"
	CapabilityDisabled CapabilityMode = "false"
)

func ParseCapabilityMode(s string) (CapabilityMode, error) {
	switch m := CapabilityMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", CapabilityAuto:
		return CapabilityAuto, nil
	case CapabilityEnabled, CapabilityDisabled:
		return m, nil
	default:
		return "", fmt.Errorf("invalid capability mode %q, want auto|true|false", s)
	}
}

// DetectCapabilities resolves optional schema features. Only auto mode
// touches the database.
func DetectCapabilities(ctx context.Context, db bun.IDB, roomActive CapabilityMode) (store.Capabilities, error) {
	switch roomActive {
	case CapabilityEnabled:
		return store.Capabilities{RoomActiveColumn: true}, nil
	case CapabilityDisabled:
		return store.Capabilities{}, nil
	}

	exists, err := columnExists(ctx, db, "rooms", "is_active")
	if err != nil {
		return store.Capabilities{}, fmt.Errorf("probe rooms.is_active: %w", err)
	}
	return store.Capabilities{RoomActiveColumn: exists}, nil
}

func columnExists(ctx context.Context, db bun.IDB, table, column string) (bool, error) {
	var n int
	err := db.NewRaw(
		"SELECT count(*) FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?",
		table, column,
	).Scan(ctx, &n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
