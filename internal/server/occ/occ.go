// Package occ implements the optimistic concurrency check run before every
// update and delete.
package occ

import (
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
)

// Unspecified is the client timestamp meaning "not seen before / don't care".
var Unspecified = time.Time{}

// Check compares the stored last-modified value of a locked row with the
// value the client last observed. A zero client value skips the check.
func Check(stored, client time.Time) error {
	if client.IsZero() {
		return nil
	}
	if client.Before(stored) {
		return common.ConcurrentModification("occ.Check")
	}
	return nil
}

// Next returns the last-modified value of a mutation accepted at now. It is
// strictly greater than previous even when the clock stands still or goes back.
func Next(previous, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if floor := previous.UTC().Add(time.Millisecond); now.Before(floor) {
		return floor
	}
	return now
}
