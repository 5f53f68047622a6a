package preprocess

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ata-pipeline/internal/model"

	"github.com/mssola/useragent"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
)

// DeleteRowsEmpty drops every record missing a value (absent, nil, "" or
// NaN) in any of Fields.
type DeleteRowsEmpty struct {
	Fields []string
}

func (DeleteRowsEmpty) Name() string { return "delete_rows_empty" }

func (d DeleteRowsEmpty) Check() error { return checkFields(d.Fields...) }

func (d DeleteRowsEmpty) Apply(_ context.Context, b model.Batch) (model.Batch, error) {
	return filter(b, func(r model.Record) bool {
		for _, f := range d.Fields {
			if r.IsMissing(f) {
				return false
			}
		}
		return true
	}), nil
}

// DeleteRowsDuplicateKey drops every record whose PrimaryKey value occurs
// more than once in the batch. No occurrence is kept. Records without a
// key pass through.
//
// When Timestamp is set, each dropped group is logged at debug with its
// size and the span of its timestamps.
type DeleteRowsDuplicateKey struct {
	PrimaryKey string
	Timestamp  string
}

func (DeleteRowsDuplicateKey) Name() string { return "delete_rows_duplicate_key" }

func (d DeleteRowsDuplicateKey) Check() error {
	if d.Timestamp == "" {
		return checkFields(d.PrimaryKey)
	}
	return checkFields(d.PrimaryKey, d.Timestamp)
}

func (d DeleteRowsDuplicateKey) Apply(ctx context.Context, b model.Batch) (model.Batch, error) {
	hashes := make([]xxh3.Uint128, len(b.Records))
	keyed := make([]bool, len(b.Records))
	counts := make(map[xxh3.Uint128]int, len(b.Records))

	for i, r := range b.Records {
		key, ok := keyOf(r, d.PrimaryKey)
		if !ok {
			continue
		}
		h := xxh3.HashString128(key)
		hashes[i], keyed[i] = h, true
		counts[h]++
	}

	out := make([]model.Record, 0, len(b.Records))
	groups := map[xxh3.Uint128]*dupGroup{}
	for i, r := range b.Records {
		if !keyed[i] || counts[hashes[i]] == 1 {
			out = append(out, r)
			continue
		}
		g, ok := groups[hashes[i]]
		if !ok {
			g = &dupGroup{key: fmt.Sprint(r[d.PrimaryKey])}
			groups[hashes[i]] = g
		}
		g.add(r[d.Timestamp])
	}

	if len(groups) > 0 {
		l := zerolog.Ctx(ctx)
		if l.GetLevel() <= zerolog.DebugLevel {
			for _, g := range groups {
				ev := l.Debug().Str("key", g.key).Int("size", g.size)
				if !g.first.IsZero() {
					ev = ev.Time("first", g.first).Time("last", g.last).Dur("span", g.last.Sub(g.first))
				}
				ev.Msg("dropped duplicate key group")
			}
		}
	}

	return b.WithRecords(out), nil
}

type dupGroup struct {
	key         string
	size        int
	first, last time.Time
}

func (g *dupGroup) add(ts any) {
	g.size++
	t, ok := ts.(time.Time)
	if !ok {
		return
	}
	if g.first.IsZero() || t.Before(g.first) {
		g.first = t
	}
	if t.After(g.last) {
		g.last = t
	}
}

func keyOf(r model.Record, f string) (string, bool) {
	if r.IsMissing(f) {
		return "", false
	}
	if s, ok := r.String(f); ok {
		return s, true
	}
	return fmt.Sprint(r[f]), true
}

// botTokens catches HTTP clients and headless browsers the user-agent
// parser reports as regular browsers. Matched as substrings of the
// lowercased agent, so each must be specific enough never to occur in a
// device or browser name.
var botTokens = []string{
	"curl/", "wget/", "python-requests/", "python-urllib/", "go-http-client/",
	"headlesschrome", "phantomjs", "lighthouse", "pingdom", "crawler", "spider", "slurp",
}

// botProduct matches a product token ending in "bot" (Googlebot/2.1,
// AhrefsBot/7.0;, "compatible; bingbot)"). Device names like CUBOT_X30 or
// "KOBOT K1" are not followed by a delimiter and stay unmatched.
var botProduct = regexp.MustCompile(`(?i)bot(?:[/;)]|$)`)

// DeleteRowsBot drops records whose Field user agent is a known bot or
// crawler. Records without a user agent are kept.
type DeleteRowsBot struct {
	Field string
}

func (DeleteRowsBot) Name() string { return "delete_rows_bot" }

func (d DeleteRowsBot) Check() error { return checkFields(d.Field) }

func (d DeleteRowsBot) Apply(_ context.Context, b model.Batch) (model.Batch, error) {
	return filter(b, func(r model.Record) bool {
		ua, ok := r.String(d.Field)
		if !ok || ua == "" {
			return true
		}
		return !IsBot(ua)
	}), nil
}

// IsBot reports whether ua identifies a bot or crawler.
func IsBot(ua string) bool {
	if useragent.New(ua).Bot() {
		return true
	}
	lower := strings.ToLower(ua)
	for _, tok := range botTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return botProduct.MatchString(ua)
}
