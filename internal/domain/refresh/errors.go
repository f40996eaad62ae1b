package refresh

import "errors"

// Sentinel kinds for cycle-level failures.
var (
	ErrSummarize = errors.New("summarization failed")
	ErrPersist   = errors.New("persistence failed")
	ErrCancelled = errors.New("refresh cycle cancelled")

	// errNoData marks a fetch that returned nothing. It never leaves the package.
	errNoData = errors.New("no data")
)
