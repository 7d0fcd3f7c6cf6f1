package domain

import "errors"

// ErrInvalidTransition signals a status change the lifecycle machine forbids.
var ErrInvalidTransition = errors.New("invalid status transition")
