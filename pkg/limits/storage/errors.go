package storage

import "errors"

var (
	errNilAssignment = errors.New("assignment cannot be nil")
	errEmptyBucket   = errors.New("bucket cannot be empty")
	errNegativeLimit = errors.New("limit cannot be negative")

	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("storage: backend closed")
)
