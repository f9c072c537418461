package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/service/availability"
)

type planner interface {
	CheckRepeat(ctx context.Context, in availability.CheckRepeatInput) ([]availability.ConflictResult, error)
	BusyBlocks(ctx context.Context, date civil.Date, userIDs []int64, ignorePersonalBookingID *int64) (availability.BusyBlocks, error)
}

type connectFunc func(ctx context.Context) (planner, func() error, error)

// App holds the CLI state. The engine is only built once a subcommand runs,
// so --help works without a database.
type App struct {
	connect connectFunc
	out     io.Writer
	root    *cobra.Command
}

func NewApp(connect connectFunc, out io.Writer) *App {
	a := &App{connect: connect, out: out}

	a.root = &cobra.Command{
		Use:           "studioctl",
		Short:         "Query the booking availability engine",
		Long:          `studioctl runs availability checks directly against the configured database and prints JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.root.SetOut(out)

	a.root.AddCommand(a.checkRepeatCmd())
	a.root.AddCommand(a.busyCmd())
	return a
}

func (a *App) Execute() error {
	return a.root.Execute()
}

func (a *App) checkRepeatCmd() *cobra.Command {
	var (
		date, clock          string
		trainer, location    int64
		user, ignorePersonal int64
		weeks                int
		checkUsersBusy       bool
	)

	cmd := &cobra.Command{
		Use:   "check-repeat",
		Short: "Check a weekly repeated session for conflicts",
		Example: `  studioctl check-repeat --date 2025-03-03 --time 09:00 --trainer 7 --location 1 --weeks 4
  studioctl check-repeat --date 2025-03-03 --time 18:30 --trainer 7 --location 1 --weeks 8 --user 42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := civil.ParseDate(date)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD")
			}
			if _, err := civiltime.ParseClock(clock); err != nil {
				return fmt.Errorf("--time must be HH:MM")
			}

			in := availability.CheckRepeatInput{
				Date:        d,
				TrainerID:   trainer,
				LocationID:  location,
				Time:        clock,
				RepeatWeeks: weeks,
			}
			if cmd.Flags().Changed("check-users-busy") {
				in.CheckUsersBusy = &checkUsersBusy
			}
			if cmd.Flags().Changed("user") {
				in.UserID = &user
			}
			if cmd.Flags().Changed("ignore-personal-booking") {
				in.IgnorePersonalBookingID = &ignorePersonal
			}

			return a.withPlanner(cmd.Context(), func(ctx context.Context, p planner) error {
				results, err := p.CheckRepeat(ctx, in)
				if err != nil {
					return err
				}
				return a.printJSON(map[string]any{"success": true, "repeatedBookings": results})
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "First session date (YYYY-MM-DD, Stockholm)")
	cmd.Flags().StringVar(&clock, "time", "", "Session start (HH:MM, Stockholm)")
	cmd.Flags().Int64Var(&trainer, "trainer", 0, "Trainer user ID")
	cmd.Flags().Int64Var(&location, "location", 0, "Location ID")
	cmd.Flags().IntVar(&weeks, "weeks", 1, "Number of weekly occurrences")
	cmd.Flags().Int64Var(&user, "user", 0, "Trainee user ID")
	cmd.Flags().Int64Var(&ignorePersonal, "ignore-personal-booking", 0, "Personal booking ID to leave out")
	cmd.Flags().BoolVar(&checkUsersBusy, "check-users-busy", true, "Treat every booking of the trainer and trainee as busy time")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	_ = cmd.MarkFlagRequired("trainer")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func (a *App) busyCmd() *cobra.Command {
	var (
		date           string
		users          string
		ignorePersonal int64
	)

	cmd := &cobra.Command{
		Use:     "busy",
		Short:   "Print the merged busy blocks of users on one day",
		Example: `  studioctl busy --date 2025-03-03 --users 7,42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := civil.ParseDate(date)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD")
			}
			ids, err := parseIDList(users)
			if err != nil {
				return err
			}
			var ignore *int64
			if cmd.Flags().Changed("ignore-personal-booking") {
				ignore = &ignorePersonal
			}

			return a.withPlanner(cmd.Context(), func(ctx context.Context, p planner) error {
				blocks, err := p.BusyBlocks(ctx, d, ids, ignore)
				if err != nil {
					return err
				}
				out := make([]busyBlock, 0, len(blocks.Intervals))
				for _, b := range blocks.Intervals {
					out = append(out, busyBlock{
						Start:    civiltime.FormatClock(b.Start),
						End:      civiltime.FormatClock(b.End),
						OwnerIDs: b.OwnerIDs,
					})
				}
				return a.printJSON(map[string]any{
					"date":           d,
					"busyBlocks":     out,
					"skippedRecords": blocks.Skipped,
				})
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to inspect (YYYY-MM-DD, Stockholm)")
	cmd.Flags().StringVar(&users, "users", "", "Comma-separated user IDs")
	cmd.Flags().Int64Var(&ignorePersonal, "ignore-personal-booking", 0, "Personal booking ID to leave out")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("users")
	return cmd
}

type busyBlock struct {
	Start    string  `json:"start"`
	End      string  `json:"end"`
	OwnerIDs []int64 `json:"ownerIds"`
}

func (a *App) withPlanner(ctx context.Context, fn func(context.Context, planner) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, closeFn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}
	return fn(ctx, p)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("--users: %q is not a valid user id", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("--users: at least one user id is required")
	}
	return ids, nil
}
