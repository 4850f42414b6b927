// Package system provides the wall clock used to stamp indexed pages.
package system

import "time"

// Clock implements crawler.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time truncated to milliseconds, the precision
// the index and the page ledger store.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
