package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrInvalidSample   = errors.New("invalid biometric sample")
	ErrInvalidInterval = errors.New("invalid sleep interval")
	ErrInvalidWorkout  = errors.New("invalid workout session")
	ErrClosed          = errors.New("store closed")
)
