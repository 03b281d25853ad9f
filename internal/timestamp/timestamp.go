// Package timestamp produces filename-safe timestamps that sort in
// chronological order.
package timestamp

import (
	"sync"
	"time"
)

// Layout is fixed width so that lexicographic order matches time order.
const Layout = "2006-01-02_15-04-05.000000"

var (
	mu   sync.Mutex
	last time.Time
)

// Format renders t in UTC using Layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Now returns the current wall-clock time formatted with Layout.
// Successive calls in one process never return the same string: when the
// clock has not advanced by a full microsecond the previous value is bumped.
func Now() string {
	return Format(Next())
}

// Next returns the instant Now would format, truncated to microseconds.
func Next() time.Time {
	mu.Lock()
	defer mu.Unlock()

	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(last) {
		t = last.Add(time.Microsecond)
	}
	last = t
	return t
}

// Seconds returns t as fractional seconds since the Unix epoch.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
