package session

import "errors"

var (
	// ErrBlocked is returned when a block signature is still present after
	// the recovery attempt.
	ErrBlocked = errors.New("blocked by anti-bot protection")
	// ErrNavigationTimeout is returned when a navigation exceeds its bound.
	ErrNavigationTimeout = errors.New("navigation timed out")
)
