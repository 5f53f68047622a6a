// internal/field/field.go
package field

// Field registry
//
// Canonical Snowplow enriched-event fields consumed by the pipeline, plus the
// fields the pipeline itself derives. Snowplow field reference:
// https://docs.snowplow.io/docs/understanding-your-pipeline/canonical-event/
//
// The tables below are read-only after package init. Callers get copies.

// Name is a canonical column name.
type Name = string

// Type is the declared logical type of a field.
type Type string

const (
	TypeString      Type = "string"
	TypeInt         Type = "int"
	TypeFloat       Type = "float"
	TypeDatetime    Type = "datetime"
	TypeCategorical Type = "categorical"
	TypeJSON        Type = "json"
)

// Raw Snowplow fields.
const (
	BrViewHeight         Name = "br_viewheight"     // [float] browser viewport height
	BrViewWidth          Name = "br_viewwidth"      // [float] browser viewport width
	DerivedTstamp        Name = "derived_tstamp"    // [datetime] allows for inaccurate device clocks
	DocHeight            Name = "doc_height"        // [float] page height in pixels
	DomainSessionIdx     Name = "domain_sessionidx" // [int] 1-based session counter per domain_userid
	DomainUserID         Name = "domain_userid"     // first-party cookie user ID
	DvceScreenHeight     Name = "dvce_screenheight" // [float]
	DvceScreenWidth      Name = "dvce_screenwidth"  // [float]
	EventID              Name = "event_id"          // primary key within a site
	EventName            Name = "event_name"        // [categorical] page_view, page_ping, focus_form, change_form, submit_form
	NetworkUserID        Name = "network_userid"    // third-party cookie user ID
	PageReferrer         Name = "page_referrer"
	PageURL              Name = "page_url"
	PageURLHost          Name = "page_urlhost"
	PageURLPath          Name = "page_urlpath"
	PPYOffsetMax         Name = "pp_yoffset_max" // [float] only on page_ping
	RefrMedium           Name = "refr_medium"    // [categorical] social, search, internal, unknown, email
	RefrSource           Name = "refr_source"    // [categorical] e.g. Google, Bing
	SemistructFormSubmit Name = "unstruct_event_com_snowplowanalytics_snowplow_submit_form_1"
	UserAgent            Name = "useragent"
)

// Fields added by the pipeline.
const (
	SiteName Name = "site_name"
)

// EventNameSubmitForm is the event_name value carrying a form-submission payload.
const EventNameSubmitForm = "submit_form"

type entry struct {
	name Name
	typ  Type
}

// snowplow keeps registry order; it is also the default column order.
var snowplow = []entry{
	{BrViewHeight, TypeFloat},
	{BrViewWidth, TypeFloat},
	{DerivedTstamp, TypeDatetime},
	{DocHeight, TypeFloat},
	{DomainSessionIdx, TypeInt},
	{DomainUserID, TypeString},
	{DvceScreenHeight, TypeFloat},
	{DvceScreenWidth, TypeFloat},
	{EventID, TypeString},
	{EventName, TypeCategorical},
	{NetworkUserID, TypeString},
	{PageReferrer, TypeString},
	{PageURL, TypeString},
	{PageURLHost, TypeString},
	{PageURLPath, TypeString},
	{PPYOffsetMax, TypeFloat},
	{RefrMedium, TypeCategorical},
	{RefrSource, TypeCategorical},
	{SemistructFormSubmit, TypeJSON},
	{UserAgent, TypeString},
}

var derived = []entry{
	{SiteName, TypeString},
}

var types = func() map[Name]Type {
	m := make(map[Name]Type, len(snowplow)+len(derived))
	for _, s := range snowplow {
		m[s.name] = s.typ
	}
	for _, s := range derived {
		m[s.name] = s.typ
	}
	return m
}()

// Snowplow returns the raw field names in registry order.
func Snowplow() []Name {
	return names(snowplow)
}

// Known reports whether name is a registered raw or derived field.
func Known(name Name) bool {
	_, ok := types[name]
	return ok
}

// IsSnowplow reports whether name is a raw Snowplow field.
func IsSnowplow(name Name) bool {
	for _, s := range snowplow {
		if s.name == name {
			return true
		}
	}
	return false
}

// TypeOf returns the declared type of name.
func TypeOf(name Name) (Type, bool) {
	t, ok := types[name]
	return t, ok
}

// OfType returns the raw fields declared with t, in registry order.
func OfType(t Type) []Name {
	var out []Name
	for _, s := range snowplow {
		if s.typ == t {
			out = append(out, s.name)
		}
	}
	return out
}

func names(entries []entry) []Name {
	out := make([]Name, len(entries))
	for i, s := range entries {
		out[i] = s.name
	}
	return out
}
