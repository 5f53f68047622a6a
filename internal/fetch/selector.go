package fetch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSelector: neither hours nor an explicit key was given.
	ErrNoSelector = errors.New("fetch: no selector: provide hours or a key")
	// ErrAmbiguousSelector: both hours and an explicit key were given.
	ErrAmbiguousSelector = errors.New("fetch: ambiguous selector: provide hours or a key, not both")
	// ErrInvalidConcurrency: negative degree of parallelism.
	ErrInvalidConcurrency = errors.New("fetch: concurrency must be positive")
)

// DefaultConcurrency is used when a request leaves Concurrency at 0.
const DefaultConcurrency = 4

// hourLayout is the Snowplow S3 loader's partitioning under enriched/good.
const hourLayout = "2006/01/02/15"

// HourPrefix maps t to the key prefix of its UTC hour:
//
//	enriched/good/YYYY/MM/DD/HH
func HourPrefix(t time.Time) string {
	return "enriched/good/" + t.UTC().Format(hourLayout)
}

// Selector picks the remote objects of one fetch. Exactly one of Hours
// or Key must be set.
type Selector struct {
	Hours []time.Time // each is truncated to its UTC hour
	Key   string      // explicit key or key prefix
}

// Validate reports a selector that sets neither or both forms.
func (s Selector) Validate() error {
	switch {
	case len(s.Hours) == 0 && s.Key == "":
		return ErrNoSelector
	case len(s.Hours) > 0 && s.Key != "":
		return ErrAmbiguousSelector
	}
	return nil
}

// Prefixes returns the listing prefixes in selector order. Hours that
// fall in the same UTC hour yield one prefix.
func (s Selector) Prefixes() []string {
	if s.Key != "" {
		return []string{s.Key}
	}
	out := make([]string, 0, len(s.Hours))
	seen := make(map[string]struct{}, len(s.Hours))
	for _, h := range s.Hours {
		p := HourPrefix(h)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// String is used in logs.
func (s Selector) String() string {
	if s.Key != "" {
		return "key=" + s.Key
	}
	return fmt.Sprintf("hours=%d", len(s.Hours))
}

// ResolveConcurrency applies the default to 0 and rejects negatives.
func ResolveConcurrency(n int) (int, error) {
	switch {
	case n == 0:
		return DefaultConcurrency, nil
	case n < 0:
		return 0, fmt.Errorf("%w: %d", ErrInvalidConcurrency, n)
	}
	return n, nil
}
