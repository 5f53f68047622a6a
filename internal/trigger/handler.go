// Package trigger turns S3 object-created notifications into pipeline
// runs, one object at a time.
package trigger

import (
	"context"
	"fmt"
	"net/url"

	"ata-pipeline/internal/fetch"
	"ata-pipeline/internal/pipeline"
	"ata-pipeline/internal/site"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Runner is satisfied by *pipeline.Runner.
type Runner interface {
	Run(ctx context.Context, p pipeline.Params) (pipeline.Result, error)
}

// ParseRecord maps one notification record to run parameters: the site
// comes from the bucket name, the selector is the (URL-decoded) object
// key, and concurrency is pinned to 1.
func ParseRecord(rec events.S3EventRecord, bucketPrefix string) (pipeline.Params, error) {
	s, err := site.FromBucket(rec.S3.Bucket.Name, bucketPrefix)
	if err != nil {
		return pipeline.Params{}, err
	}

	key := rec.S3.Object.URLDecodedKey
	if key == "" {
		if key, err = url.QueryUnescape(rec.S3.Object.Key); err != nil {
			return pipeline.Params{}, fmt.Errorf("decode key %q: %w", rec.S3.Object.Key, err)
		}
	}
	if key == "" {
		return pipeline.Params{}, fmt.Errorf("record for bucket %s has no object key", rec.S3.Bucket.Name)
	}

	return pipeline.Params{
		Site:        s,
		Selector:    fetch.Selector{Key: key},
		Concurrency: 1,
	}, nil
}

// Handler runs the pipeline for every record of a notification, in
// order. It never returns an error: failures are logged and counted, and
// the next record still runs.
type Handler struct {
	runner       Runner
	bucketPrefix string
}

// NewHandler returns a Handler.
func NewHandler(r Runner, bucketPrefix string) *Handler {
	return &Handler{runner: r, bucketPrefix: bucketPrefix}
}

// Handle processes ev. Its signature matches lambda.Start.
func (h *Handler) Handle(ctx context.Context, ev events.S3Event) {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &zlog.Logger
	}

	if len(ev.Records) == 0 {
		l.Warn().Msg("trigger: notification without records")
		return
	}

	for i, rec := range ev.Records {
		if ctx.Err() != nil {
			l.Warn().Int("remaining", len(ev.Records)-i).Msg("trigger: canceled, skipping remaining records")
			return
		}

		p, err := ParseRecord(rec, h.bucketPrefix)
		if err != nil {
			l.Error().Err(err).
				Str("bucket", rec.S3.Bucket.Name).
				Str("key", rec.S3.Object.Key).
				Msg("trigger: invalid record")
			continue
		}

		// Run logs its own failure with run_id; this line ties it to the
		// notification.
		if _, err := h.runner.Run(ctx, p); err != nil {
			l.Error().Err(err).
				Str("site", string(p.Site)).
				Str("key", p.Selector.Key).
				Msg("trigger: pipeline run failed")
		}
	}
}
