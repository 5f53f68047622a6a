package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ata-pipeline/internal/app"
	"ata-pipeline/internal/config"
	"ata-pipeline/internal/fetch"
	"ata-pipeline/internal/logger"
	"ata-pipeline/internal/pipeline"
	"ata-pipeline/internal/site"

	zlog "github.com/rs/zerolog/log"
)

// main runs the pipeline once for one site, over a set of hours or a
// single object key, then pushes metrics and exits non-zero on failure.
//
//	pipeline -site afro-la -hours 2022-11-03T05,2022-11-03T06
//	pipeline -site the-19th -key enriched/good/2022/11/03/05/part-0.gz
//	pipeline -site afro-la -hours-file backfill.txt -source-dir ./testdata
func main() {
	var (
		flagSite = flag.String(
			"site",
			"",
			fmt.Sprintf("Site to process, one of %v", site.All()),
		)
		flagHours = flag.String(
			"hours",
			"",
			"Comma-separated hours (RFC3339 or YYYY-MM-DDTHH, UTC when no zone)",
		)
		flagHoursFile = flag.String(
			"hours-file",
			"",
			"File with one hour per line; blank lines and # comments are skipped",
		)
		flagKey = flag.String(
			"key",
			"",
			"Single object key to process instead of hours",
		)
		flagConcurrency = flag.Int(
			"concurrency",
			0,
			"Objects fetched in parallel; 0 uses CONCURRENCY, 1 keeps strict object order",
		)
		flagSourceDir = flag.String(
			"source-dir",
			"",
			"Read <dir>/<bucket>/<key> from disk instead of S3",
		)
	)
	flag.Parse()

	if *flagSite == "" {
		fmt.Fprintln(os.Stderr, "missing -site")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger.Init(cfg)

	hours, err := fetch.ParseHours(*flagHours)
	if err != nil {
		zlog.Fatal().Err(err).Msg("parse -hours")
	}
	if *flagHoursFile != "" {
		more, err := fetch.ReadHours(*flagHoursFile)
		if err != nil {
			zlog.Fatal().Err(err).Msg("read -hours-file")
		}
		hours = append(hours, more...)
	}

	params := pipeline.Params{
		Site:        site.Name(*flagSite),
		Selector:    fetch.Selector{Hours: hours, Key: *flagKey},
		Concurrency: *flagConcurrency,
	}
	// bad input exits before any S3 or Postgres connection is opened
	if err := params.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{SourceDir: *flagSourceDir})
	if err != nil {
		zlog.Fatal().Err(err).Msg("init")
	}

	_, runErr := a.Runner.Run(ctx, params)

	// push even after a failed run so the error is counted
	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a.PushMetrics(pushCtx, cfg.ServiceName)
	cancel()

	if err := a.Close(); err != nil {
		zlog.Warn().Err(err).Msg("close")
	}
	if runErr != nil {
		os.Exit(1)
	}
}
