package chatview

import "errors"

// Sentinel errors returned by View operations.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoRoom       = errors.New("no room selected")
	ErrClosed       = errors.New("view closed")
	ErrInvalidUser  = errors.New("invalid user")
)
