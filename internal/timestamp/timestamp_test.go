package timestamp

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 123456789, time.FixedZone("X", 3600))

	assert.Equal(t, "2024-03-09_06-05-01.123456", Format(ts))
}

func TestNow_FilenameSafe(t *testing.T) {
	s := Now()

	assert.Len(t, s, len(Layout))
	assert.False(t, strings.ContainsAny(s, `/\: `), "unsafe character in %q", s)
}

func TestNow_UniqueAndSorted(t *testing.T) {
	const n = 500
	got := make([]string, n)
	for i := range got {
		got[i] = Now()
	}

	seen := make(map[string]bool, n)
	for _, s := range got {
		require.False(t, seen[s], "duplicate timestamp %s", s)
		seen[s] = true
	}
	assert.True(t, sort.StringsAreSorted(got), "timestamps not in call order")
}

func TestSeconds(t *testing.T) {
	ts := time.Unix(1700000000, 250000000)

	assert.InDelta(t, 1700000000.25, Seconds(ts), 1e-6)
}
