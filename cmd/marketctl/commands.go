package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/trogers1052/nextworth-marketdata/internal/app"
	"github.com/trogers1052/nextworth-marketdata/internal/config"
	"github.com/trogers1052/nextworth-marketdata/internal/database"
	"github.com/trogers1052/nextworth-marketdata/internal/marketcache"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

var commands = []subcommands.Command{
	&migrateCmd{},
	&historyCmd{},
	&predictCmd{},
}

var stdout io.Writer = os.Stdout

func loadConfig() (*config.Config, error) {
	return config.Load(*configPath)
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply database migrations" }
func (*migrateCmd) Usage() string {
	return `marketctl migrate

  Applies every pending schema migration to the configured database.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "%s schema is up to date\n", db.Dialect())
	return subcommands.ExitSuccess
}

type historyCmd struct {
	months   int
	interval string
	ttl      time.Duration
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "fetch a price history through the cache" }
func (*historyCmd) Usage() string {
	return `marketctl history [-months <n>] [-interval <1d|1wk|1mo>] [-ttl <duration>] <symbol>

  Loads the history of a symbol exactly like the HTTP API does and prints
  the JSON response.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.months, "months", 12, "History span in months (1, 3, 6, 12, 24, 60, 120).")
	f.StringVar(&c.interval, "interval", "1mo", "Bucket size: 1d, 1wk or 1mo.")
	f.DurationVar(&c.ttl, "ttl", 0, "Maximum age of cached points. Defaults to the configured TTL.")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "exactly one symbol is required")
		return subcommands.ExitUsageError
	}
	g, err := models.ParseGranularity(c.interval)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return withApp(ctx, func(a *app.App) (any, error) {
		return a.Service.GetHistory(ctx, marketcache.HistoryRequest{
			Symbol:      f.Arg(0),
			Months:      c.months,
			Granularity: g,
			TTL:         c.ttl,
		})
	})
}

type predictCmd struct {
	horizon string
}

func (*predictCmd) Name() string     { return "predict" }
func (*predictCmd) Synopsis() string { return "fetch price predictions through the cache" }
func (*predictCmd) Usage() string {
	return `marketctl predict [-horizon <3m|6m|1y|2y|5y>] <symbol>

  Loads predictions for a symbol, calling the model when no fresh forecast
  is stored, and prints the JSON response.
`
}

func (c *predictCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.horizon, "horizon", "1y", "Forecast horizon: 3m, 6m, 1y, 2y or 5y.")
}

func (c *predictCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "exactly one symbol is required")
		return subcommands.ExitUsageError
	}
	horizon, err := models.ParseHorizon(c.horizon)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return withApp(ctx, func(a *app.App) (any, error) {
		return a.Service.GetPrediction(ctx, f.Arg(0), horizon)
	})
}

// withApp builds the service, runs fn and prints its result as JSON
func withApp(ctx context.Context, fn func(a *app.App) (any, error)) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	a, err := app.Build(ctx, cfg, app.NewLogger(cfg.Log))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	result, err := fn(a)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
