// Package clock implements the HH:MM:SS wall-clock arithmetic shared by the
// tracker and the strategy projection: parsing, rendering, dedup bucketing,
// and midnight-aware distances between times of day.
package clock

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedTime is returned for strings that are not zero-padded HH:MM:SS.
// Callers in the read path log it and substitute "00:00:00" rather than
// propagating it.
var ErrMalformedTime = errors.New("malformed HH:MM:SS time")

const secondsPerDay = 24 * 60 * 60

// ParseHMS converts an HH:MM:SS string to total seconds. Hours may exceed 23
// (practice baselines can run past a day boundary).
func ParseHMS(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		if p == "" {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
		vals[i] = n
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	return vals[0]*3600 + vals[1]*60 + vals[2], nil
}

// ParseHMSOrZero parses s and substitutes zero for malformed input. The bool
// result reports whether the input was well formed.
func ParseHMSOrZero(s string) (int, bool) {
	n, err := ParseHMS(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatHMS renders seconds as zero-padded HH:MM:SS. Negative values clamp to
// "00:00:00".
func FormatHMS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}

// BucketSeconds quantizes seconds down to a multiple of window. A window of
// zero or less leaves the value unchanged.
func BucketSeconds(seconds, window int) int {
	if window <= 0 {
		return seconds
	}
	return (seconds / window) * window
}

// BucketHMS quantizes an HH:MM:SS string to its dedup bucket.
func BucketHMS(s string, window int) (string, error) {
	n, err := ParseHMS(s)
	if err != nil {
		return "", err
	}
	return FormatHMS(BucketSeconds(n, window)), nil
}

// WallDistance returns the non-negative wall-time distance in seconds from cur
// back to prev, treating both as times of day and adding 24h when the naive
// difference would be negative.
func WallDistance(prevSeconds, curSeconds int) int {
	d := (prevSeconds - curSeconds) % secondsPerDay
	if d < 0 {
		d += secondsPerDay
	}
	return d
}

// CrossesMidnight reports whether subtracting span from a time of day lands at
// or beyond the start of the day.
func CrossesMidnight(curSeconds, span int) bool {
	return curSeconds-span <= 0
}

// RemainingSeconds computes the base remaining-time value from scoring end and
// current elapsed times, rounding partial seconds up.
func RemainingSeconds(endET, currentET float64) int {
	return int(math.Ceil(endET - currentET))
}

// AdjustRemaining applies the practice-mode adjusters to a base remaining
// value: startSeconds is subtracted (garage dwell before the pit) and
// offsetSeconds is added back (the moving baseline). The result clamps at
// zero.
func AdjustRemaining(baseSeconds, startSeconds, offsetSeconds int) int {
	v := baseSeconds - startSeconds + offsetSeconds
	if v < 0 {
		v = 0
	}
	return v
}
