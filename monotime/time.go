package monotime

import (
	"time"
)

// Time is a point on the monotonic clock in nanoseconds. It is not
// related to wall time and survives wall clock adjustments, which makes
// it safe for poll-interval bookkeeping on long-running devices.
type Time int64

var (
	baseWallTime time.Time
	baseWallNano int64
)

func init() {
	baseWallTime = time.Now()
	baseWallNano = baseWallTime.UnixNano()
}

// Now returns the current monotonic time.
func Now() Time {
	return Time(baseWallNano + int64(time.Since(baseWallTime)))
}

// Since returns the duration elapsed since t.
func Since(t Time) time.Duration {
	return time.Duration(Now() - t)
}
