package repository

import (
	"math"
	"time"
)

// maxPurgeAgeSeconds is the largest purgeAge that can be converted to a
// time.Duration without overflowing its int64 nanosecond representation.
var maxPurgeAgeSeconds = int64(time.Duration(math.MaxInt64) / time.Second)

// staleCutoff computes the horizon DeleteStale purges before. When
// purgeAge would overflow a time.Duration, it reports coarse=true and
// falls back to a one-year-ago cutoff, matching the fallback spec.md
// describes for its DATEDIFF-based overflow guard.
func staleCutoff(purgeAge int64) (cutoff time.Time, coarse bool) {
	now := time.Now().UTC()

	if purgeAge < 0 || purgeAge > maxPurgeAgeSeconds {
		return now.AddDate(-1, 0, 0), true
	}

	return now.Add(-time.Duration(purgeAge) * time.Second), false
}
