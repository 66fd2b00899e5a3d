package errors

import "errors"

var (
	// ErrNotFound is the sentinel for unknown job or capsule ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is the sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCancelRejected is returned when a job has passed the indexing commit point.
	ErrCancelRejected = errors.New("job cannot be cancelled after indexing has started")
	// ErrTooManyJobs is returned when the concurrent-job cap is reached.
	ErrTooManyJobs = errors.New("maximum concurrent jobs exceeded")
	// ErrFeatureDisabled is returned when a request needs a disabled feature flag.
	ErrFeatureDisabled = errors.New("feature not enabled")
)
