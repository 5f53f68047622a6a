package site

import (
	"errors"
	"fmt"
	"slices"

	"ata-pipeline/internal/field"
	"ata-pipeline/internal/model"

	json "github.com/goccy/go-json"
)

// ---------------------------------------------------------------
// Form submission payload
//
// Snowplow submit_form schema:
// https://github.com/snowplow/iglu-central/blob/master/schemas/com.snowplowanalytics.snowplow/submit_form/jsonschema/1-0-0
// ---------------------------------------------------------------

// FormElement is one input of a submitted form.
type FormElement struct {
	Name     string  `json:"name"`
	NodeName string  `json:"nodeName"`
	Value    *string `json:"value,omitempty"`
	Type     *string `json:"type,omitempty"`
}

// FormSubmitData is the submit_form payload.
type FormSubmitData struct {
	FormID      string        `json:"formId"`
	FormClasses []string      `json:"formClasses"`
	Elements    []FormElement `json:"elements"`
}

var errMalformedForm = errors.New("site: malformed form payload")

// ParseFormSubmit decodes a payload in any of the shapes it takes along
// the pipeline: raw JSON text, or the tree ConvertFieldTypes produced.
func ParseFormSubmit(v any) (FormSubmitData, error) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return FormSubmitData{}, fmt.Errorf("%w: empty", errMalformedForm)
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return FormSubmitData{}, fmt.Errorf("%w: %v", errMalformedForm, err)
		}
		raw = b
	}

	var d FormSubmitData
	if err := json.Unmarshal(raw, &d); err != nil {
		return FormSubmitData{}, fmt.Errorf("%w: %v", errMalformedForm, err)
	}
	if d.Elements == nil {
		return FormSubmitData{}, fmt.Errorf("%w: no elements", errMalformedForm)
	}
	return d, nil
}

// ---------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------

// Predicate classifies one processed event. Predicates are pure.
type Predicate func(model.Record) bool

// HasNonemptyData reports whether the event carries a form payload.
func HasNonemptyData(r model.Record) bool {
	return !r.IsMissing(field.SemistructFormSubmit)
}

// HasEmailInput reports whether the submitted form has an
// <input type="email">, as every partner newsletter form does. A payload
// that fails to parse yields false.
func HasEmailInput(r model.Record) bool {
	d, err := ParseFormSubmit(r[field.SemistructFormSubmit])
	if err != nil {
		return false
	}
	for _, e := range d.Elements {
		if e.NodeName == "INPUT" && e.Type != nil && *e.Type == "email" {
			return true
		}
	}
	return false
}

// HasURLPath returns a predicate matching events on exactly path.
func HasURLPath(path string) Predicate {
	return func(r model.Record) bool {
		p, ok := r.String(field.PageURLPath)
		return ok && p == path
	}
}

// ---------------------------------------------------------------
// Newsletter signup validators
// ---------------------------------------------------------------

// newsletterBase applies to every site.
var newsletterBase = []Predicate{HasNonemptyData, HasEmailInput}

// newsletterExtra lists each site's predicates on top of the base. Sites
// with none still get the base checks.
var newsletterExtra = map[Name][]Predicate{
	AfroLA:          {HasURLPath("/subscribe")},
	DallasFreePress: nil,
	OpenVallejo:     nil,
	The19th:         nil,
}

// Validator is an ordered predicate list for one site.
type Validator struct {
	predicates []Predicate
}

// NewsletterSignupValidator returns the newsletter signup validator of n.
func NewsletterSignupValidator(n Name) (Validator, error) {
	extra, ok := newsletterExtra[n]
	if !ok {
		return Validator{}, fmt.Errorf("%w: %q", ErrUnknownSite, n)
	}
	preds := make([]Predicate, 0, len(newsletterBase)+len(extra))
	preds = append(preds, newsletterBase...)
	preds = append(preds, extra...)
	return Validator{predicates: preds}, nil
}

// Predicates returns a copy of the predicate list.
func (v Validator) Predicates() []Predicate { return slices.Clone(v.predicates) }

// Validate reports whether every predicate accepts r. It stops at the
// first rejection. The zero Validator accepts nothing.
func (v Validator) Validate(r model.Record) bool {
	if len(v.predicates) == 0 {
		return false
	}
	for _, p := range v.predicates {
		if !p(r) {
			return false
		}
	}
	return true
}

// CountNewsletterSignups counts submit_form events in b accepted by v.
func CountNewsletterSignups(b model.Batch, v Validator) int {
	n := 0
	for _, r := range b.Records {
		if name, ok := r.String(field.EventName); !ok || name != field.EventNameSubmitForm {
			continue
		}
		if v.Validate(r) {
			n++
		}
	}
	return n
}
