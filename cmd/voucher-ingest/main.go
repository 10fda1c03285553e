// Command voucher-ingest imports partner voucher codes as cart rules.
//
// A code is valid when it appears in at least -min-files of the gzip exports
// found in -data-dir. Every valid code becomes a single-use cart rule that
// copies the discount settings of the -template rule.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront-orders/internal/storage/postgres"
)

type options struct {
	dataDir     string
	pattern     string
	databaseURL string
	template    string
	minFiles    int
	capacity    uint
	fpr         float64
	batch       int
	dryRun      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing partner exports")
	flag.StringVar(&opts.pattern, "pattern", "*.gz", "glob of export files inside data-dir")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or SHOP_DATABASE_URL env)")
	flag.StringVar(&opts.template, "template", "PARTNER", "code of the cart rule to copy settings from")
	flag.IntVar(&opts.minFiles, "min-files", 2, "number of exports a code must appear in")
	flag.UintVar(&opts.capacity, "capacity", 120_000_000, "expected codes per export")
	flag.Float64Var(&opts.fpr, "fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&opts.batch, "batch", 5000, "codes inserted per statement")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "only report valid codes")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("SHOP_DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Error("Voucher ingest failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Voucher ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	if opts.minFiles < 2 {
		return errors.Errorf("min-files must be at least 2, got %d", opts.minFiles)
	}
	if opts.batch <= 0 {
		return errors.Errorf("batch must be positive, got %d", opts.batch)
	}
	if opts.databaseURL == "" && !opts.dryRun {
		return errors.New("database URL is required: set -database-url or SHOP_DATABASE_URL")
	}

	files, err := filepath.Glob(filepath.Join(opts.dataDir, opts.pattern))
	if err != nil {
		return errors.Wrap(err, "list exports")
	}
	slices.Sort(files)

	s := &scanner{
		lg:       lg,
		capacity: opts.capacity,
		fpr:      opts.fpr,
		minFiles: opts.minFiles,
	}
	codes, err := s.Shared(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Valid codes found", zap.Int("count", len(codes)))

	if opts.dryRun || len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	rules := postgres.NewCartRuleRepository(pool)
	var inserted int64
	for chunk := range slices.Chunk(codes, opts.batch) {
		n, err := rules.CloneFromTemplate(ctx, opts.template, chunk)
		if err != nil {
			return errors.Wrap(err, "write vouchers")
		}
		inserted += n
		lg.Info("Write progress", zap.Int64("inserted", inserted), zap.Int("total", len(codes)))
	}

	lg.Info("Vouchers written",
		zap.Int64("inserted", inserted),
		zap.Int("skipped", len(codes)-int(inserted)),
	)
	return nil
}
