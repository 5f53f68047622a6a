// Package preprocess holds the batch cleaning stages and the engine that
// runs them in order.
//
// A Stage never mutates the batch it receives: it returns a new Batch
// and clones any record it changes. The engine imposes no ordering; the
// orchestrator fixes it (see pipeline.Stages).
package preprocess

import (
	"context"
	"errors"
	"fmt"

	"ata-pipeline/internal/field"
	"ata-pipeline/internal/metrics"
	"ata-pipeline/internal/model"

	"github.com/rs/zerolog"
)

// ErrUnknownField marks a stage parameter naming a field outside the
// registry.
var ErrUnknownField = errors.New("preprocess: unknown field")

// Stage is one transform step.
type Stage interface {
	// Name is a stable snake_case identifier used in logs and metrics.
	Name() string
	// Apply returns the transformed batch.
	Apply(ctx context.Context, b model.Batch) (model.Batch, error)
}

// checker is implemented by stages whose parameters name fields.
type checker interface {
	Check() error
}

// Check validates every stage's parameters. Run it before any I/O.
func Check(stages []Stage) error {
	for _, s := range stages {
		c, ok := s.(checker)
		if !ok {
			continue
		}
		if err := c.Check(); err != nil {
			return fmt.Errorf("stage %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Run applies stages in order, logging and recording the row delta of
// each one. The first failing stage aborts the run.
func Run(ctx context.Context, b model.Batch, stages []Stage, m *metrics.Metrics) (model.Batch, error) {
	l := zerolog.Ctx(ctx)

	for _, s := range stages {
		before, colsBefore := b.Shape()

		out, err := s.Apply(ctx, b)
		if err != nil {
			return model.Batch{}, fmt.Errorf("stage %s: %w", s.Name(), err)
		}

		after, colsAfter := out.Shape()
		m.StageDropped(s.Name(), before-after)
		l.Debug().
			Str("stage", s.Name()).
			Int("rows_in", before).
			Int("rows_out", after).
			Int("rows_dropped", before-after).
			Int("columns_in", colsBefore).
			Int("columns_out", colsAfter).
			Msg("stage applied")

		b = out
	}
	return b, nil
}

// checkFields returns ErrUnknownField for the first unregistered name.
func checkFields(names ...string) error {
	for _, n := range names {
		if !field.Known(n) {
			return fmt.Errorf("%w: %q", ErrUnknownField, n)
		}
	}
	return nil
}

// filter keeps the records for which keep returns true. Records are
// shared, not cloned, since they are not modified.
func filter(b model.Batch, keep func(model.Record) bool) model.Batch {
	out := make([]model.Record, 0, len(b.Records))
	for _, r := range b.Records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return b.WithRecords(out)
}
