// Package system provides the wall clock used for run start times.
package system

import (
	"time"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// Clock implements harvest.Clock in UTC, the zone checkpoints are stored in.
type Clock struct{}

var _ harvest.Clock = Clock{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
