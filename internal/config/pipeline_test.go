package config

import (
	"os"
	"path/filepath"
	"testing"

	"ata-pipeline/internal/field"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipeline_Valid(t *testing.T) {
	p := DefaultPipeline()
	require.NoError(t, p.Validate())

	assert.Equal(t, field.EventID, p.FieldPrimaryKey)
	assert.Equal(t, field.DerivedTstamp, p.FieldTimestamp)
	assert.Equal(t, []string{field.DomainSessionIdx}, p.FieldsInt)
	assert.Equal(t, []string{
		field.BrViewHeight,
		field.BrViewWidth,
		field.DocHeight,
		field.DvceScreenHeight,
		field.DvceScreenWidth,
		field.PPYOffsetMax,
	}, p.FieldsFloat)
	assert.Equal(t, []string{field.DerivedTstamp}, p.FieldsDatetime)
	assert.Equal(t, []string{field.EventName, field.RefrMedium, field.RefrSource}, p.FieldsCategorical)
	assert.Equal(t, []string{field.SemistructFormSubmit}, p.FieldsJSON)
	assert.Len(t, p.FieldsRelevant, len(field.Snowplow()))
}

func TestLoadPipeline_EmptyPathReturnsDefaults(t *testing.T) {
	p, err := LoadPipeline("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPipeline(), p)
}

func TestLoadPipeline_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	body := "fields_required: [event_id, page_urlpath]\nfields_categorical: [event_name]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	p, err := LoadPipeline(path)
	require.NoError(t, err)

	assert.Equal(t, []string{field.EventID, field.PageURLPath}, p.FieldsRequired)
	assert.Equal(t, []string{field.EventName}, p.FieldsCategorical)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultPipeline().FieldsFloat, p.FieldsFloat)
}

func TestLoadPipeline_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields_float: [not_a_field]\n"), 0o644))

	_, err := LoadPipeline(path)
	require.ErrorIs(t, err, ErrInvalidPipeline)
	assert.Contains(t, err.Error(), "not_a_field")
}

func TestLoadPipeline_MissingFile(t *testing.T) {
	_, err := LoadPipeline(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_RequiresPrimaryKey(t *testing.T) {
	p := DefaultPipeline()
	p.FieldPrimaryKey = ""
	err := p.Validate()
	require.ErrorIs(t, err, ErrInvalidPipeline)
	assert.Contains(t, err.Error(), "field_primary_key")
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]struct {
		edit func(*Pipeline)
		want string
	}{
		"float list holds a string field": {
			edit: func(p *Pipeline) { p.FieldsFloat = append(p.FieldsFloat, field.PageURL) },
			want: `fields_float: "page_url" is declared string`,
		},
		"int list holds a float field": {
			edit: func(p *Pipeline) { p.FieldsInt = []string{field.DocHeight} },
			want: `fields_int: "doc_height" is declared float`,
		},
		"timestamp is not a datetime": {
			edit: func(p *Pipeline) { p.FieldTimestamp = field.EventName },
			want: "field_timestamp",
		},
		"derived field selected": {
			edit: func(p *Pipeline) { p.FieldsRelevant = append(p.FieldsRelevant, field.SiteName) },
			want: "fields_relevant",
		},
		"primary key moved": {
			edit: func(p *Pipeline) { p.FieldPrimaryKey = field.DomainUserID },
			want: `field_primary_key: must be "event_id"`,
		},
		"site column moved": {
			edit: func(p *Pipeline) { p.FieldSiteName = field.PageURLHost },
			want: `field_site_name: must be "site_name"`,
		},
		"no user agent": {
			edit: func(p *Pipeline) { p.FieldUserAgent = "" },
			want: "field_useragent: required",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultPipeline()
			tc.edit(&p)
			err := p.Validate()
			require.ErrorIs(t, err, ErrInvalidPipeline)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadPipeline_TypeConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields_categorical: [event_name, useragent]\n"), 0o644))

	_, err := LoadPipeline(path)
	require.ErrorIs(t, err, ErrInvalidPipeline)
	assert.Contains(t, err.Error(), `"useragent" is declared string`)
}
