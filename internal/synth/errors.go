package synth

import "errors"

var (
	// ErrInvalidConfig is returned when the run configuration is unusable.
	ErrInvalidConfig = errors.New("invalid synth config")
	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrSubmit is returned when items could not be submitted.
	ErrSubmit = errors.New("submission failed")
	// ErrNotSettled is returned when the workers did not store every item in time.
	ErrNotSettled = errors.New("items not stored in time")
	// ErrVerification is returned when the readiness result is not usable.
	ErrVerification = errors.New("readiness verification failed")
)
