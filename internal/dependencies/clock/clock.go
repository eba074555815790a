package clock

import "time"

// Clock provides the current time; mail timestamps and cleanup cut-offs go
// through it so tests can pin them
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// NowMillis returns the clock's current time in unix milliseconds, the unit
// message timestamps are stored in
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}
