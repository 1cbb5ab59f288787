package engine

import "errors"

var (
	// ErrSequenceConflict is returned by a journal when another writer
	// appended to the aggregate after it was loaded.
	ErrSequenceConflict = errors.New("aggregate sequence conflict")
	// ErrDeciderRequired indicates a missing decider.
	ErrDeciderRequired = errors.New("decider is required")
	// ErrLoaderRequired indicates a missing state loader.
	ErrLoaderRequired = errors.New("state loader is required")
	// ErrJournalRequired indicates a missing event journal.
	ErrJournalRequired = errors.New("event journal is required")
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrApplierRequired indicates a missing applier.
	ErrApplierRequired = errors.New("applier is required")
)

// nonRetryableError wraps an error to signal that retrying the operation
// would be harmful, e.g. resubmitting a command whose events were already
// committed before projection failed. Transports use IsNonRetryable to turn
// it into a permanent failure instead of a retry hint.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable returns true from IsNonRetryable checks.
func (e *nonRetryableError) NonRetryable() bool { return true }

func wrapNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable returns true when the error (or any error in its chain)
// signals that the operation must not be retried.
func IsNonRetryable(err error) bool {
	var target interface{ NonRetryable() bool }
	if errors.As(err, &target) {
		return target.NonRetryable()
	}
	return false
}
