package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"studio/backend/internal/config"
	"studio/backend/internal/service/availability"
	"studio/backend/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := NewApp(connect, os.Stdout)
	return app.Execute()
}

// connect opens the configured database and builds an engine on top of it.
// Logs go to stderr so stdout stays valid JSON.
func connect(ctx context.Context) (planner, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})).With(
		slog.String("service", "studioctl"),
	)

	roomActive, err := postgres.ParseCapabilityMode(cfg.RoomActiveColumn)
	if err != nil {
		return nil, nil, err
	}

	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closeDB := func() error { return postgres.Close(db) }

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	caps, err := postgres.DetectCapabilities(probeCtx, db, roomActive)
	if err != nil {
		_ = closeDB()
		return nil, nil, fmt.Errorf("probing schema: %w", err)
	}

	svc := availability.NewService(postgres.NewBookingRepo(db, caps), availability.Options{
		MaxRepeatWeeks:        cfg.MaxRepeatWeeks,
		WeekConcurrency:       cfg.WeekConcurrency,
		DefaultCheckUsersBusy: cfg.DefaultCheckUsersBusy,
	}, nil, log)
	return svc, closeDB, nil
}
