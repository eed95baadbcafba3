// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// Clock reads the wall clock in UTC, truncated to Precision.
type Clock struct {
	Precision time.Duration
}

var _ leadership.Clock = Clock{}

// New returns a clock with millisecond precision, the finest resolution the
// batch and cache stores persist.
func New() Clock {
	return Clock{Precision: time.Millisecond}
}

// Now returns the current UTC time.
func (c Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.Precision > 0 {
		now = now.Truncate(c.Precision)
	}
	return now
}
