/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import "time"

// Clock is a source of the current time used to compute entries age.
type Clock interface {
	Now() time.Time
}

// ClockFunc is an adapter to allow the use of ordinary functions as Clock.
type ClockFunc func() time.Time

// Now calls f().
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock is a Clock backed by time.Now.
var SystemClock Clock = ClockFunc(time.Now)
