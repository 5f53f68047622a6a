package preprocess

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ata-pipeline/internal/field"
	"ata-pipeline/internal/model"

	json "github.com/goccy/go-json"
)

// ErrConversion marks a value that could not be coerced to its declared
// type. Use errors.As with *ConversionError for details.
var ErrConversion = errors.New("preprocess: conversion failed")

// ConversionError describes one failed coercion.
type ConversionError struct {
	Field string
	Value string
	Type  field.Type
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s=%q to %s: %v", e.Field, e.Value, e.Type, e.Err)
}

func (e *ConversionError) Unwrap() []error { return []error{ErrConversion, e.Err} }

// ConvertFieldTypes coerces string values to their declared types:
//   - Int: int64
//   - Float: float64 ("NaN" is accepted and nulled later)
//   - Datetime: time.Time normalized to UTC
//   - Categorical: model.Category
//   - JSON: decoded tree (map[string]any, []any, ...)
//
// Missing values are left alone. Any other failure aborts the stage.
type ConvertFieldTypes struct {
	Int         []string
	Float       []string
	Datetime    []string
	Categorical []string
	JSON        []string
}

func (ConvertFieldTypes) Name() string { return "convert_field_types" }

func (c ConvertFieldTypes) Check() error {
	for _, fs := range [][]string{c.Int, c.Float, c.Datetime, c.Categorical, c.JSON} {
		if err := checkFields(fs...); err != nil {
			return err
		}
	}
	return nil
}

type conversion struct {
	field string
	typ   field.Type
	fn    func(string) (any, error)
}

func (c ConvertFieldTypes) conversions() []conversion {
	var out []conversion
	add := func(fs []string, t field.Type, fn func(string) (any, error)) {
		for _, f := range fs {
			out = append(out, conversion{field: f, typ: t, fn: fn})
		}
	}
	add(c.Int, field.TypeInt, parseInt)
	add(c.Float, field.TypeFloat, parseFloat)
	add(c.Datetime, field.TypeDatetime, parseDatetime)
	add(c.Categorical, field.TypeCategorical, parseCategory)
	add(c.JSON, field.TypeJSON, parseJSON)
	return out
}

func (c ConvertFieldTypes) Apply(_ context.Context, b model.Batch) (model.Batch, error) {
	convs := c.conversions()
	recs := make([]model.Record, len(b.Records))

	for i, r := range b.Records {
		nr, cloned := r, false
		for _, cv := range convs {
			s, ok := r[cv.field].(string)
			if !ok || s == "" {
				// missing, or already typed
				continue
			}
			v, err := cv.fn(s)
			if err != nil {
				return model.Batch{}, &ConversionError{Field: cv.field, Value: s, Type: cv.typ, Err: err}
			}
			if !cloned {
				nr, cloned = r.Clone(), true
			}
			nr[cv.field] = v
		}
		recs[i] = nr
	}
	return b.WithRecords(recs), nil
}

func parseInt(s string) (any, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseFloat(s string) (any, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// datetimeLayouts covers Snowplow's enriched TSV/JSON forms and RFC 3339.
// Layouts without a zone are read as UTC.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseDatetime(s string) (any, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func parseCategory(s string) (any, error) {
	return model.Category(s), nil
}

func parseJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Categories returns the sorted distinct values of a categorical field.
func Categories(b model.Batch, f string) []model.Category {
	seen := map[model.Category]struct{}{}
	for _, r := range b.Records {
		if c, ok := r[f].(model.Category); ok {
			seen[c] = struct{}{}
		}
	}
	out := make([]model.Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
