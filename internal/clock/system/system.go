// Package system provides the wall clock used to stamp runs and files.
package system

import "time"

// Clock implements collect.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time at millisecond precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
