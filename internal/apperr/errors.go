// Package apperr holds the sentinel errors shared by the service and its
// transports.
package apperr

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrNotInQueue = errors.New("not in review queue")
	ErrQueueEmpty = errors.New("review queue is empty")
	ErrInvalid    = errors.New("invalid request")
)
