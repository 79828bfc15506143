package ingest

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store implementations.
var (
	// ErrNotFound is returned by stores when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores when an insert loses a uniqueness
	// race. It is transient: the caller re-resolves and updates instead.
	ErrConflict = errors.New("uniqueness conflict")
	// ErrRunInProgress is returned when a run is requested for a source
	// that already has one in flight.
	ErrRunInProgress = errors.New("run already in progress for source")
	// ErrSourceInactive is returned when a run is requested for a source
	// that is not active.
	ErrSourceInactive = errors.New("source is not active")
)

// RejectReason describes why a record was refused by the normalizer.
type RejectReason string

// Record-level reject reasons. These are counted, never retried.
const (
	RejectMissingRequiredField RejectReason = "missing_required_field"
	RejectTitleTooShort        RejectReason = "title_too_short"
)

// RejectError is a record-level, non-retryable validation failure. It is
// aggregated into run counters and never escapes the orchestrator.
type RejectError struct {
	Reason RejectReason
	Field  string
}

func (e *RejectError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record rejected: %s (%s)", e.Reason, e.Field)
	}
	return fmt.Sprintf("record rejected: %s", e.Reason)
}

// ExtractionError is a run-level failure of the source itself (endpoint
// unreachable, blocked, unparseable feed). It aborts the remaining
// sequence for the run and is retryable at the scheduler level.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for source %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsReject reports whether err is a record-level reject.
func IsReject(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// IsExtractionFailure reports whether err is a run-level source failure.
func IsExtractionFailure(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
