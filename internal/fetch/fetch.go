// Package fetch assembles one Batch from the remote objects a Selector
// picks: list by prefix, then download, gunzip and decode each object on
// a bounded worker pool.
package fetch

import (
	"context"
	"fmt"

	"ata-pipeline/internal/blob"
	"ata-pipeline/internal/jsonl"
	"ata-pipeline/internal/metrics"
	"ata-pipeline/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Request describes one fetch.
type Request struct {
	Bucket      string
	Site        string // metric/log label only
	Selector    Selector
	Concurrency int // 0 means DefaultConcurrency; 1 gives strict sequential order
}

// Fetcher reads event objects from a blob.Store.
type Fetcher struct {
	store   blob.Store
	metrics *metrics.Metrics
}

// New returns a Fetcher. m may be nil.
func New(store blob.Store, m *metrics.Metrics) *Fetcher {
	return &Fetcher{store: store, metrics: m}
}

// Fetch
// -----
// 1) validate selector and concurrency (no I/O on failure)
// 2) one List call per prefix, keys kept in listing order
// 3) Open + DecodeGZ per key, at most Concurrency at a time
// 4) concatenate per-object results in key order
//
// Any failure aborts the fetch and cancels outstanding downloads. No
// matching objects yields an empty batch.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (model.Batch, error) {
	if err := req.Selector.Validate(); err != nil {
		return model.Batch{}, err
	}
	workers, err := ResolveConcurrency(req.Concurrency)
	if err != nil {
		return model.Batch{}, err
	}
	l := zerolog.Ctx(ctx)

	var keys []string
	for _, prefix := range req.Selector.Prefixes() {
		ks, err := f.store.List(ctx, req.Bucket, prefix)
		if err != nil {
			return model.Batch{}, err
		}
		l.Debug().Str("bucket", req.Bucket).Str("prefix", prefix).Int("objects", len(ks)).Msg("listed objects")
		keys = append(keys, ks...)
	}

	parts := make([]model.Batch, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		g.Go(func() error {
			b, err := f.fetchObject(gctx, req.Bucket, key)
			if err != nil {
				return err
			}
			parts[i] = b
			f.metrics.ObjectFetched(req.Site, b.Len())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Batch{}, err
	}

	var batch model.Batch
	for _, p := range parts {
		batch = batch.Append(p)
	}

	rows, cols := batch.Shape()
	f.metrics.BatchShape(req.Site, cols)
	l.Info().
		Str("selector", req.Selector.String()).
		Int("objects", len(keys)).
		Int("rows", rows).
		Int("columns", cols).
		Msg("fetched batch")

	return batch, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, bucket, key string) (model.Batch, error) {
	rc, err := f.store.Open(ctx, bucket, key)
	if err != nil {
		return model.Batch{}, err
	}
	defer rc.Close()

	recs, fields, err := jsonl.DecodeGZ(rc)
	if err != nil {
		return model.Batch{}, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return model.Batch{Fields: fields, Records: recs}, nil
}
