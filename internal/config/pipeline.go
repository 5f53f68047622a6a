package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"ata-pipeline/internal/field"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPipeline marks a stage configuration that references fields
// outside the registry or leaves a required parameter empty.
var ErrInvalidPipeline = errors.New("invalid pipeline config")

// Pipeline holds the per-stage parameters of a run. Stage order is not
// configurable; see pipeline.Stages.
//
// Example PIPELINE_CONFIG file (any omitted key keeps its default):
//
//	fields_required: [event_id, derived_tstamp, page_urlpath]
//	fields_categorical: [event_name, refr_medium]
//	field_useragent: useragent
type Pipeline struct {
	FieldsRelevant    []string `yaml:"fields_relevant"`
	FieldsRequired    []string `yaml:"fields_required"`
	FieldsInt         []string `yaml:"fields_int"`
	FieldsFloat       []string `yaml:"fields_float"`
	FieldsDatetime    []string `yaml:"fields_datetime"`
	FieldsCategorical []string `yaml:"fields_categorical"`
	FieldsJSON        []string `yaml:"fields_json"`

	FieldPrimaryKey string `yaml:"field_primary_key"`
	FieldTimestamp  string `yaml:"field_timestamp"`
	FieldUserAgent  string `yaml:"field_useragent"`
	FieldSiteName   string `yaml:"field_site_name"`
}

// DefaultPipeline returns the parameters used in production.
func DefaultPipeline() Pipeline {
	return Pipeline{
		FieldsRelevant: field.Snowplow(),
		FieldsRequired: []string{
			field.DerivedTstamp,
			field.DocHeight,
			field.DomainSessionIdx,
			field.DomainUserID,
			field.DvceScreenHeight,
			field.DvceScreenWidth,
			field.EventID,
			field.EventName,
			field.PageURL,
			field.PageURLHost,
			field.PageURLPath,
		},
		FieldsInt:         field.OfType(field.TypeInt),
		FieldsFloat:       field.OfType(field.TypeFloat),
		FieldsDatetime:    field.OfType(field.TypeDatetime),
		FieldsCategorical: field.OfType(field.TypeCategorical),
		FieldsJSON:        field.OfType(field.TypeJSON),

		FieldPrimaryKey: field.EventID,
		FieldTimestamp:  field.DerivedTstamp,
		FieldUserAgent:  field.UserAgent,
		FieldSiteName:   field.SiteName,
	}
}

// LoadPipeline overlays the YAML file at path onto DefaultPipeline and
// validates the result. An empty path returns the defaults.
func LoadPipeline(path string) (Pipeline, error) {
	p := DefaultPipeline()
	if path == "" {
		return p, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read pipeline config: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Pipeline{}, fmt.Errorf("decode pipeline config %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// Validate checks every referenced field against the registry:
//   - names must be registered; fields_relevant takes raw fields only
//   - a conversion list may only hold fields declared with that type
//   - field_primary_key and field_site_name must be event_id and
//     site_name, the events table's conflict key
func (p Pipeline) Validate() error {
	var problems []string

	check := func(key string, names ...string) {
		for _, n := range names {
			if !field.Known(n) {
				problems = append(problems, fmt.Sprintf("%s: unknown field %q", key, n))
			}
		}
	}
	typed := func(key string, want field.Type, names []string) {
		check(key, names...)
		for _, n := range names {
			if t, ok := field.TypeOf(n); ok && t != want {
				problems = append(problems, fmt.Sprintf("%s: %q is declared %s", key, n, t))
			}
		}
	}
	pinned := func(key, v, want string) {
		if v != want {
			problems = append(problems, fmt.Sprintf("%s: must be %q, got %q", key, want, v))
		}
	}

	check("fields_relevant", p.FieldsRelevant...)
	for _, n := range p.FieldsRelevant {
		if field.Known(n) && !field.IsSnowplow(n) {
			problems = append(problems, fmt.Sprintf("fields_relevant: %q is added by the pipeline", n))
		}
	}
	check("fields_required", p.FieldsRequired...)
	typed("fields_int", field.TypeInt, p.FieldsInt)
	typed("fields_float", field.TypeFloat, p.FieldsFloat)
	typed("fields_datetime", field.TypeDatetime, p.FieldsDatetime)
	typed("fields_categorical", field.TypeCategorical, p.FieldsCategorical)
	typed("fields_json", field.TypeJSON, p.FieldsJSON)

	pinned("field_primary_key", p.FieldPrimaryKey, field.EventID)
	pinned("field_site_name", p.FieldSiteName, field.SiteName)
	if p.FieldUserAgent == "" {
		problems = append(problems, "field_useragent: required")
	} else {
		check("field_useragent", p.FieldUserAgent)
	}
	if p.FieldTimestamp != "" {
		typed("field_timestamp", field.TypeDatetime, []string{p.FieldTimestamp})
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPipeline, strings.Join(problems, "; "))
	}
	return nil
}
