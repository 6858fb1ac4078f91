// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

var _ crawler.Clock = Clock{}

// Clock implements crawler.Clock with UTC wall time.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Unix returns the current time in whole seconds, the granularity the
// signature and archive paths use.
func (c Clock) Unix() int64 {
	return c.Now().Unix()
}
