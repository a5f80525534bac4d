package scenario

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TestPrefix starts the work field of every entry a cycle writes. The
// cleanup sweep deletes entries carrying it, so nothing else may use it.
const TestPrefix = "k6 "

// UpdateSentinel is what the update step writes in front of the marker.
const UpdateSentinel = TestPrefix + "update"

// Marker returns the per-iteration marker embedded in created entries.
//
// The (vu, iter) pair is unique across concurrently running iterations,
// so two markers never collide even when now is identical.
func Marker(vu, iter int, now time.Time) string {
	return fmt.Sprintf("k6-smoke-%d-%d-%d", vu, iter, now.UnixMilli())
}

// IsTestEntry reports whether work marks an entry created by a test run.
func IsTestEntry(work string) bool {
	return strings.HasPrefix(norm.NFC.String(work), TestPrefix)
}
