// internal/model/event.go
package model

import (
	"math"
	"slices"
)

// Record
// ------------------------------------------------------------
// A single Snowplow event keyed by canonical field name.
//
// Value types by pipeline stage:
//   - after fetch: string (every scalar is read as text)
//   - after type conversion: int64, float64, time.Time (UTC),
//     Category, or decoded JSON (map[string]any / []any)
//   - after null normalization: nil is the only "missing" marker
type Record map[string]any

// Category is a categorical value. Its domain is whatever was observed
// in the input; conversion never invents values.
type Category string

// Clone returns a shallow copy. Values are immutable scalars or JSON
// trees that no stage mutates, so a shallow copy is enough.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IsMissing reports whether field is absent or holds a missing marker
// (nil, empty string, NaN).
func (r Record) IsMissing(field string) bool {
	v, ok := r[field]
	if !ok {
		return true
	}
	return IsMissingValue(v)
}

// String returns the text form of field for string and Category values.
func (r Record) String(field string) (string, bool) {
	switch v := r[field].(type) {
	case string:
		return v, true
	case Category:
		return string(v), true
	}
	return "", false
}

// IsMissingValue reports whether v is one of the representations of
// "missing" that appear between fetch and null normalization.
func IsMissingValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case float64:
		return math.IsNaN(t)
	}
	return false
}

// Batch
// ------------------------------------------------------------
// An ordered set of records sharing a schema. Fields is the column
// order; records may omit fields (sparse) until null normalization.
//
// Stages never mutate a Batch they receive. They build a new one,
// cloning records they change.
type Batch struct {
	Fields  []string
	Records []Record
}

// Len returns the number of records.
func (b Batch) Len() int { return len(b.Records) }

// Shape returns (rows, columns).
func (b Batch) Shape() (int, int) { return len(b.Records), len(b.Fields) }

// Column returns the values of one field in record order.
func (b Batch) Column(name string) []any {
	out := make([]any, len(b.Records))
	for i, r := range b.Records {
		out[i] = r[name]
	}
	return out
}

// WithRecords returns a batch with the same schema and the given records.
func (b Batch) WithRecords(recs []Record) Batch {
	return Batch{Fields: slices.Clone(b.Fields), Records: recs}
}

// Append concatenates other onto b, extending the schema with fields
// first seen in other.
func (b Batch) Append(other Batch) Batch {
	fields := slices.Clone(b.Fields)
	for _, f := range other.Fields {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	recs := make([]Record, 0, len(b.Records)+len(other.Records))
	recs = append(recs, b.Records...)
	recs = append(recs, other.Records...)
	return Batch{Fields: fields, Records: recs}
}
