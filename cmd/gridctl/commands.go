package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/iliyamo/room-slot-reservation/internal/model"
	"github.com/iliyamo/room-slot-reservation/internal/service"
	"github.com/iliyamo/room-slot-reservation/internal/utils"
)

// grid is the maintainer surface gridctl drives.
type grid interface {
	RunCycle(ctx context.Context) (service.CycleReport, error)
	RefreshWindow(ctx context.Context) (int, error)
	RefreshDay(ctx context.Context, day time.Time) (int, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
	Backfill(ctx context.Context) (int, error)
}

// env carries what commands need.  The grid and the consumer are opened lazily so
// token minting works without a database or broker.
type env struct {
	out       io.Writer
	jwtSecret string
	today     func() time.Time
	openGrid  func() (grid, func(), error)
	consume   func(ctx context.Context) error
}

// command is one gridctl subcommand.
type command struct {
	flags *flag.FlagSet
	usage string
	short string
	exec  func(ctx context.Context, e *env, args []string) error
}

func (c *command) name() string {
	name, _, _ := strings.Cut(c.usage, " ")
	return name
}

func commands() []*command {
	refresh := flag.NewFlagSet("refresh", flag.ContinueOnError)
	refreshDate := refresh.String("date", "", "day to refresh as ddmmyy (default: last day of the booking window)")

	purge := flag.NewFlagSet("purge", flag.ContinueOnError)
	purgeBefore := purge.String("before", "", "delete slots dated before this ddmmyy day (default: today)")

	token := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := token.StringP("subject", "s", "operator", "token subject")
	ttl := token.Duration("ttl", time.Hour, "token lifetime")

	return []*command{
		{
			flags: flag.NewFlagSet("run", flag.ContinueOnError),
			usage: "run",
			short: "Refresh the last window day and purge expired slots in one transaction",
			exec: withGrid(func(ctx context.Context, e *env, g grid, _ []string) error {
				rep, err := g.RunCycle(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "refreshed %s: %d slots created; purged %d slots before %s\n",
					rep.Day.Format(model.DateFormat), rep.Inserted, rep.Purged, rep.Cutoff.Format(model.DateFormat))
				return nil
			}),
		},
		{
			flags: refresh,
			usage: "refresh [--date ddmmyy]",
			short: "Create the missing slots of one day",
			exec: withGrid(func(ctx context.Context, e *env, g grid, _ []string) error {
				var (
					n   int
					err error
				)
				if *refreshDate == "" {
					n, err = g.RefreshWindow(ctx)
				} else {
					day, perr := parseDay(*refreshDate)
					if perr != nil {
						return perr
					}
					n, err = g.RefreshDay(ctx, day)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%d slots created\n", n)
				return nil
			}),
		},
		{
			flags: purge,
			usage: "purge [--before ddmmyy]",
			short: "Delete slots and their waitlists dated before a day",
			exec: withGrid(func(ctx context.Context, e *env, g grid, _ []string) error {
				cutoff := e.today()
				if *purgeBefore != "" {
					d, err := parseDay(*purgeBefore)
					if err != nil {
						return err
					}
					if d.After(cutoff) {
						return fmt.Errorf("refusing to purge bookable days: %s is after today", *purgeBefore)
					}
					cutoff = d
				}
				n, err := g.PurgeExpired(ctx, cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%d slots purged\n", n)
				return nil
			}),
		},
		{
			flags: flag.NewFlagSet("backfill", flag.ContinueOnError),
			usage: "backfill",
			short: "Create the missing slots of every day in the booking window",
			exec: withGrid(func(ctx context.Context, e *env, g grid, _ []string) error {
				n, err := g.Backfill(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%d slots created\n", n)
				return nil
			}),
		},
		{
			flags: token,
			usage: "token [--subject name] [--ttl 1h]",
			short: "Mint an ADMIN token for the /v1/admin/grid endpoints",
			exec: func(_ context.Context, e *env, _ []string) error {
				tok, err := utils.NewAdminToken(e.jwtSecret, *subject, *ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(e.out, tok.Token)
				return nil
			},
		},
		{
			flags: flag.NewFlagSet("notify", flag.ContinueOnError),
			usage: "notify",
			short: "Consume promotion notices and log them until interrupted",
			exec: func(ctx context.Context, e *env, _ []string) error {
				err := e.consume(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			},
		},
	}
}

func withGrid(fn func(ctx context.Context, e *env, g grid, args []string) error) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		g, closeFn, err := e.openGrid()
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(ctx, e, g, args)
	}
}

func parseDay(raw string) (time.Time, error) {
	d, err := time.Parse(model.DateFormat, raw)
	if err != nil || len(raw) != 6 {
		return time.Time{}, fmt.Errorf("invalid day %q: want ddmmyy", raw)
	}
	return d, nil
}

func printUsage(w io.Writer, cmds []*command) {
	fmt.Fprintln(w, "Usage: gridctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range cmds {
		fmt.Fprintf(w, "  %-34s %s\n", c.usage, c.short)
	}
}

// run dispatches args to a command and returns the process exit code.
func run(ctx context.Context, e *env, stderr io.Writer, args []string) int {
	cmds := commands()
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr, cmds)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	for _, c := range cmds {
		if c.name() != args[0] {
			continue
		}
		c.flags.SetOutput(io.Discard)
		if err := c.flags.Parse(args[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				fmt.Fprintf(stderr, "Usage: gridctl %s\n\n%s\n\n", c.usage, c.short)
				c.flags.SetOutput(stderr)
				c.flags.PrintDefaults()
				return 0
			}
			fmt.Fprintln(stderr, "error:", err)
			return 2
		}
		if err := c.exec(ctx, e, c.flags.Args()); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(stderr, "error: unknown command %q\n\n", args[0])
	printUsage(stderr, cmds)
	return 2
}
