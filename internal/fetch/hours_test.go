package fetch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHour(t *testing.T) {
	want := time.Date(2022, 11, 3, 5, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2022-11-03T05:00:00Z",
		"2022-11-03T14:00:00+09:00",
		"2022-11-03T05",
		"2022-11-03 05",
		" 2022-11-03 05:00 ",
	} {
		got, err := ParseHour(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s -> %s", in, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, err := ParseHour("yesterday")
	assert.Error(t, err)
}

func TestParseHours(t *testing.T) {
	hs, err := ParseHours("2022-11-03T05, ,2022-11-03T06")
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "enriched/good/2022/11/03/06", HourPrefix(hs[1]))

	_, err = ParseHours("2022-11-03T05,nope")
	assert.Error(t, err)
}

func TestReadHours(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hours.txt")
	require.NoError(t, os.WriteFile(path, []byte("# backfill\n2022-11-03T05\n\n  2022-11-03T07:00:00Z\n"), 0o644))

	hs, err := ReadHours(path)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, 7, hs[1].Hour())

	require.NoError(t, os.WriteFile(path, []byte("2022-11-03T05\nbad\n"), 0o644))
	_, err = ReadHours(path)
	assert.ErrorContains(t, err, ":2:")

	_, err = ReadHours(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
