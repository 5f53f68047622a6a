package fetch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// hourLayouts are tried in order. Inputs without a zone are UTC.
var hourLayouts = []string{
	time.RFC3339,
	"2006-01-02T15",
	"2006-01-02 15",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseHour parses one hour timestamp. Minutes and seconds are allowed
// and ignored by HourPrefix.
func ParseHour(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range hourLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid hour %q: want RFC3339 or YYYY-MM-DDTHH", s)
}

// ParseHours parses a comma-separated list. Empty items are skipped.
func ParseHours(list string) ([]time.Time, error) {
	var out []time.Time
	for _, s := range strings.Split(list, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		t, err := ParseHour(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ReadHours reads one hour per line from path, skipping blank lines and
// lines starting with '#'.
func ReadHours(path string) ([]time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []time.Time
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, err := ParseHour(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
