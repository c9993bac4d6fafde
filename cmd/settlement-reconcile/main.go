package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/app"
	"github.com/xenking/qrdine/internal/settlement"
	"github.com/xenking/qrdine/internal/storage/postgres"
)

func main() {
	var (
		dataDir    string
		pattern    string
		workers    int
		sweepLimit int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gateway settlement exports")
	flag.StringVar(&pattern, "pattern", "settlement*.gz", "glob of export files inside data-dir")
	flag.IntVar(&workers, "workers", 4, "files scanned concurrently")
	flag.IntVar(&sweepLimit, "sweep-limit", 500, "max unlinked transactions recreated per run")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	cfg := settlement.Config{Workers: workers, SweepLimit: sweepLimit}
	if err := run(ctx, filepath.Join(dataDir, pattern), cfg); err != nil {
		lg.Error("Settlement reconcile failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, glob string, cfg settlement.Config) error {
	lg := zctx.From(ctx)

	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "glob settlement files")
	}
	sort.Strings(files)
	lg.Info("Settlement files found", zap.Int("count", len(files)), zap.String("glob", glob))

	appCfg, err := app.LoadEnvConfig()
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc, err := app.NewServices(pool, appCfg, noop.NewMeterProvider())
	if err != nil {
		return err
	}

	rep, err := settlement.New(svc.Payments, cfg).Run(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Settlement reconcile completed",
		zap.Int64("settled", rep.Settled),
		zap.Int("recreated", rep.Recreated),
		zap.Strings("unrecoverable", rep.Unrecoverable),
	)
	return nil
}
