package cache

import "time"

// Clock is the time source used for entry age. Expiry and refresh-ahead are
// both measured with it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
