package site

import (
	"testing"

	"ata-pipeline/internal/field"
	"ata-pipeline/internal/model"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const afroLAForm = `{"formId":"FORM","formClasses":["group","w-full"],"elements":[
{"name":"ref","value":"","nodeName":"INPUT","type":"text"},
{"name":"redirect_path","value":"/","nodeName":"INPUT","type":"hidden"},
{"name":"email","value":"dummyemail@dummydomain.com","nodeName":"INPUT","type":"email"}]}`

// signupEvent mirrors a processed record: payload decoded, category typed.
func signupEvent(t *testing.T, path string) model.Record {
	t.Helper()
	var payload any
	require.NoError(t, json.Unmarshal([]byte(afroLAForm), &payload))
	return model.Record{
		field.EventID:              "2bba4051-c7f9-46cd-90bc-9b869a5fe187",
		field.EventName:            model.Category("submit_form"),
		field.PageURLPath:          path,
		field.SemistructFormSubmit: payload,
		field.SiteName:             "afro-la",
	}
}

func TestParseName(t *testing.T) {
	n, err := ParseName("the-19th")
	require.NoError(t, err)
	assert.Equal(t, The19th, n)

	_, err = ParseName("nytimes")
	assert.ErrorIs(t, err, ErrUnknownSite)
}

func TestBucketRoundTrip(t *testing.T) {
	for _, n := range All() {
		got, err := FromBucket(n.Bucket("lnl-snowplow-"), "lnl-snowplow-")
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	assert.Equal(t, "lnl-snowplow-afro-la", AfroLA.Bucket("lnl-snowplow-"))
}

func TestFromBucket_Rejects(t *testing.T) {
	for _, b := range []string{"other-bucket", "lnl-snowplow-", "lnl-snowplow-unknown"} {
		_, err := FromBucket(b, "lnl-snowplow-")
		assert.ErrorIs(t, err, ErrUnknownSite, b)
	}
}

func TestParseFormSubmit(t *testing.T) {
	d, err := ParseFormSubmit(afroLAForm)
	require.NoError(t, err)
	assert.Equal(t, "FORM", d.FormID)
	require.Len(t, d.Elements, 3)
	assert.Equal(t, "email", *d.Elements[2].Type)

	_, err = ParseFormSubmit(`{"formId":"x"}`)
	assert.Error(t, err)
	_, err = ParseFormSubmit("{nope")
	assert.Error(t, err)
	_, err = ParseFormSubmit(nil)
	assert.Error(t, err)
}

func TestAfroLA_SubscribePathValid(t *testing.T) {
	v, err := NewsletterSignupValidator(AfroLA)
	require.NoError(t, err)

	assert.True(t, v.Validate(signupEvent(t, "/subscribe")))
	assert.False(t, v.Validate(signupEvent(t, "/")))
}

func TestPlaceholderSitesUseBase(t *testing.T) {
	for _, n := range []Name{DallasFreePress, OpenVallejo, The19th} {
		v, err := NewsletterSignupValidator(n)
		require.NoError(t, err)
		assert.Len(t, v.Predicates(), 2)
		assert.True(t, v.Validate(signupEvent(t, "/")), n)
	}
}

func TestValidatorsDoNotShareState(t *testing.T) {
	afro, _ := NewsletterSignupValidator(AfroLA)
	dfp, _ := NewsletterSignupValidator(DallasFreePress)
	assert.Len(t, afro.Predicates(), 3)
	assert.Len(t, dfp.Predicates(), 2)
}

func TestBasePredicates(t *testing.T) {
	r := signupEvent(t, "/")
	r[field.SemistructFormSubmit] = nil
	assert.False(t, HasNonemptyData(r))
	assert.False(t, HasEmailInput(r))

	r[field.SemistructFormSubmit] = `{"formId":"f","formClasses":[],"elements":[{"name":"q","nodeName":"INPUT","type":"search"}]}`
	assert.True(t, HasNonemptyData(r))
	assert.False(t, HasEmailInput(r))

	r[field.SemistructFormSubmit] = "not json"
	assert.False(t, HasEmailInput(r))
}

func TestNewsletterSignupValidator_Unknown(t *testing.T) {
	_, err := NewsletterSignupValidator("nope")
	assert.ErrorIs(t, err, ErrUnknownSite)
}

func TestCountNewsletterSignups(t *testing.T) {
	v, _ := NewsletterSignupValidator(AfroLA)
	pageView := signupEvent(t, "/subscribe")
	pageView[field.EventName] = model.Category("page_view")

	b := model.Batch{Records: []model.Record{
		signupEvent(t, "/subscribe"),
		signupEvent(t, "/"),
		pageView,
		signupEvent(t, "/subscribe"),
	}}
	assert.Equal(t, 2, CountNewsletterSignups(b, v))
}
