// Package server defines the error kinds returned by board-state operations so
// the command dispatcher can map each failure to its own response frame.
package server

import "errors"

// Sentinel errors for the board-state operations. The dispatcher matches these
// with errors.Is and renders a distinct response for each kind; none of them
// terminates the session.
var (
	// ErrUnknownGroup is returned when a command names a group that has never
	// been created.
	ErrUnknownGroup = errors.New("invalid group name")

	// ErrNotMember is returned when the caller is not a member of the group it
	// is operating on.
	ErrNotMember = errors.New("client not member of group")

	// ErrMessageNotFound is returned when a message id does not exist in the
	// group's board.
	ErrMessageNotFound = errors.New("message id does not exist")

	// ErrMessageTooOld is returned when the message exists but was posted
	// before the caller joined and falls outside the catch-up window.
	ErrMessageTooOld = errors.New("message outside catch-up window")
)
