// Package site names the partner sites and holds their event validators.
package site

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSite is returned for a name or bucket that maps to no partner.
var ErrUnknownSite = errors.New("site: unknown site")

// Name identifies a partner site. It is the site_name column value and the
// suffix of the site's event bucket.
type Name string

const (
	AfroLA          Name = "afro-la"
	DallasFreePress Name = "dallas-free-press"
	OpenVallejo     Name = "open-vallejo"
	The19th         Name = "the-19th"
)

var all = []Name{AfroLA, DallasFreePress, OpenVallejo, The19th}

// All returns every known site.
func All() []Name {
	out := make([]Name, len(all))
	copy(out, all)
	return out
}

// ParseName validates s as a site name.
func ParseName(s string) (Name, error) {
	for _, n := range all {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSite, s)
}

// Bucket returns the site's event bucket, e.g. lnl-snowplow-afro-la.
func (n Name) Bucket(prefix string) string {
	return prefix + string(n)
}

// FromBucket extracts the site from a bucket named <prefix><site>.
func FromBucket(bucket, prefix string) (Name, error) {
	rest, ok := strings.CutPrefix(bucket, prefix)
	if !ok || rest == "" {
		return "", fmt.Errorf("%w: bucket %q does not match %s<site>", ErrUnknownSite, bucket, prefix)
	}
	return ParseName(rest)
}
