// Package staging reviews staged reservations and promotes them.
package staging

import "errors"

var (
	// ErrNotFound is returned for an unknown staging record.
	ErrNotFound = errors.New("staging record not found")
	// ErrNotPending is returned when a decision targets a record that is no
	// longer pending.
	ErrNotPending = errors.New("staging record is not pending")
	// ErrInvalidAction is returned for a decision other than confirm or reject.
	ErrInvalidAction = errors.New("action must be confirm or reject")
)
