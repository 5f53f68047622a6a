package preprocess

import (
	"context"
	"slices"

	"ata-pipeline/internal/model"
)

// SelectFields projects every record onto Fields, in that order. Fields
// missing from the input become null columns.
type SelectFields struct {
	Fields []string
}

func (SelectFields) Name() string { return "select_fields" }

func (s SelectFields) Check() error { return checkFields(s.Fields...) }

func (s SelectFields) Apply(_ context.Context, b model.Batch) (model.Batch, error) {
	if err := s.Check(); err != nil {
		return model.Batch{}, err
	}

	recs := make([]model.Record, len(b.Records))
	for i, r := range b.Records {
		nr := make(model.Record, len(s.Fields))
		for _, f := range s.Fields {
			if v, ok := r[f]; ok {
				nr[f] = v
			}
		}
		recs[i] = nr
	}
	return model.Batch{Fields: slices.Clone(s.Fields), Records: recs}, nil
}

// AddField sets Field to Value on every record, extending the schema if
// needed.
type AddField struct {
	Field string
	Value any
}

func (AddField) Name() string { return "add_field" }

func (a AddField) Check() error { return checkFields(a.Field) }

func (a AddField) Apply(_ context.Context, b model.Batch) (model.Batch, error) {
	fields := slices.Clone(b.Fields)
	if !slices.Contains(fields, a.Field) {
		fields = append(fields, a.Field)
	}

	recs := make([]model.Record, len(b.Records))
	for i, r := range b.Records {
		nr := r.Clone()
		nr[a.Field] = a.Value
		recs[i] = nr
	}
	return model.Batch{Fields: fields, Records: recs}, nil
}

// ReplaceNulls makes nil the only missing marker: absent schema fields,
// empty strings and NaN all become nil. Every output record carries every
// schema field.
type ReplaceNulls struct{}

func (ReplaceNulls) Name() string { return "replace_nulls" }

func (ReplaceNulls) Apply(_ context.Context, b model.Batch) (model.Batch, error) {
	recs := make([]model.Record, len(b.Records))
	for i, r := range b.Records {
		nr := make(model.Record, len(b.Fields))
		for _, f := range b.Fields {
			v := r[f]
			if model.IsMissingValue(v) {
				v = nil
			}
			nr[f] = v
		}
		recs[i] = nr
	}
	return b.WithRecords(recs), nil
}
