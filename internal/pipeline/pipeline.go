// Package pipeline wires fetch, preprocessing, newsletter accounting and
// the writer into one run per site and selector.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"ata-pipeline/internal/config"
	"ata-pipeline/internal/fetch"
	"ata-pipeline/internal/logger"
	"ata-pipeline/internal/metrics"
	"ata-pipeline/internal/model"
	"ata-pipeline/internal/preprocess"
	"ata-pipeline/internal/site"

	"github.com/rs/zerolog"
)

// Fetcher is satisfied by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (model.Batch, error)
}

// Writer is satisfied by *postgres.EventWriter.
type Writer interface {
	Write(ctx context.Context, b model.Batch) (int64, error)
}

// Stages returns the preprocessing stages in their required order:
//
//	select → drop empty → convert types → drop duplicate keys → drop bots
//	→ add site_name → normalize nulls
//
// Type conversion follows projection and precedes deduplication, whose
// diagnostics read typed timestamps.
func Stages(p config.Pipeline, s site.Name) []preprocess.Stage {
	return []preprocess.Stage{
		preprocess.SelectFields{Fields: p.FieldsRelevant},
		preprocess.DeleteRowsEmpty{Fields: p.FieldsRequired},
		preprocess.ConvertFieldTypes{
			Int:         p.FieldsInt,
			Float:       p.FieldsFloat,
			Datetime:    p.FieldsDatetime,
			Categorical: p.FieldsCategorical,
			JSON:        p.FieldsJSON,
		},
		preprocess.DeleteRowsDuplicateKey{PrimaryKey: p.FieldPrimaryKey, Timestamp: p.FieldTimestamp},
		preprocess.DeleteRowsBot{Field: p.FieldUserAgent},
		preprocess.AddField{Field: p.FieldSiteName, Value: string(s)},
		preprocess.ReplaceNulls{},
	}
}

// Params selects what one run processes.
type Params struct {
	Site        site.Name
	Selector    fetch.Selector
	Concurrency int // 0 uses the runner default
}

// Validate checks the site, the selector and the concurrency without
// any I/O, so callers can reject bad input before opening connections.
func (p Params) Validate() error {
	if _, err := site.ParseName(string(p.Site)); err != nil {
		return err
	}
	if err := p.Selector.Validate(); err != nil {
		return err
	}
	if p.Concurrency < 0 {
		return fmt.Errorf("%w: %d", fetch.ErrInvalidConcurrency, p.Concurrency)
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Fetched   int   // rows fetched
	Processed int   // rows after preprocessing
	Inserted  int64 // rows newly written
	Signups   int   // newsletter signups among processed rows
	Duration  time.Duration
}

// Runner executes pipeline runs. It holds no per-run state.
type Runner struct {
	fetcher      Fetcher
	writer       Writer
	pipeline     config.Pipeline
	bucketPrefix string
	concurrency  int
	metrics      *metrics.Metrics
}

// NewRunner builds a Runner. concurrency is the default fetch degree; m
// may be nil.
func NewRunner(f Fetcher, w Writer, p config.Pipeline, bucketPrefix string, concurrency int, m *metrics.Metrics) *Runner {
	return &Runner{
		fetcher:      f,
		writer:       w,
		pipeline:     p,
		bucketPrefix: bucketPrefix,
		concurrency:  concurrency,
		metrics:      m,
	}
}

// Run
// ---
// 1) validate site, selector, concurrency and stage parameters (no I/O)
// 2) fetch → preprocess → count newsletter signups → write
//
// Any failure aborts the run before the write, or rolls the write back.
func (r *Runner) Run(ctx context.Context, p Params) (res Result, err error) {
	start := time.Now()
	ctx, res.RunID = logger.WithRun(ctx, string(p.Site))
	l := zerolog.Ctx(ctx)

	defer func() {
		res.Duration = time.Since(start)
		r.metrics.RunFinished(string(p.Site), err, res.Duration)
		if err != nil {
			l.Error().Err(err).Dur("duration", res.Duration).Msg("pipeline run failed")
			return
		}
		l.Info().
			Int("fetched", res.Fetched).
			Int("processed", res.Processed).
			Int64("inserted", res.Inserted).
			Int("signups", res.Signups).
			Dur("duration", res.Duration).
			Msg("pipeline run finished")
	}()

	// 1) configuration
	if err = p.Validate(); err != nil {
		return res, err
	}
	s := p.Site
	conc := p.Concurrency
	if conc == 0 {
		conc = r.concurrency
	}
	if conc, err = fetch.ResolveConcurrency(conc); err != nil {
		return res, err
	}
	stages := Stages(r.pipeline, s)
	if err = preprocess.Check(stages); err != nil {
		return res, err
	}
	validator, err := site.NewsletterSignupValidator(s)
	if err != nil {
		return res, err
	}

	// 2) fetch
	raw, err := r.fetcher.Fetch(ctx, fetch.Request{
		Bucket:      s.Bucket(r.bucketPrefix),
		Site:        string(s),
		Selector:    p.Selector,
		Concurrency: conc,
	})
	if err != nil {
		return res, err
	}
	res.Fetched = raw.Len()

	// 3) preprocess
	processed, err := preprocess.Run(ctx, raw, stages, r.metrics)
	if err != nil {
		return res, err
	}
	res.Processed = processed.Len()

	// 4) newsletter signups
	res.Signups = site.CountNewsletterSignups(processed, validator)
	r.metrics.Signups(string(s), res.Signups)

	// 5) write
	res.Inserted, err = r.writer.Write(ctx, processed)
	if err != nil {
		return res, err
	}
	return res, nil
}
