// Package treaterr defines the failure taxonomy of the treatment-logging
// engine as a closed set of error types carrying structured context, matched
// with errors.As / errors.Is rather than string inspection.
package treaterr

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError rejects a session before any I/O. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// DuplicateConflictError reports a medication session colliding with an
// existing one inside the duplicate window. Carries enough context for the
// caller to offer an "update instead" flow.
type DuplicateConflictError struct {
	MedicationName  string
	ConflictingID   string
	ConflictingTime time.Time
}

func (e *DuplicateConflictError) Error() string {
	return fmt.Sprintf("duplicate %s session at %s", e.MedicationName,
		e.ConflictingTime.Format(time.RFC3339))
}

// AtomicWriteError reports a failed atomic write unit. Chunk identifies the
// failing unit of a chunked bulk write (0 for single-unit writes); earlier
// chunks stay committed.
type AtomicWriteError struct {
	Operation string
	Chunk     int
	Err       error
}

func (e *AtomicWriteError) Error() string {
	return fmt.Sprintf("atomic write %q failed (chunk %d): %v", e.Operation, e.Chunk, e.Err)
}

func (e *AtomicWriteError) Unwrap() error { return e.Err }

// QueueFullError rejects an enqueue at the hard capacity limit. The operation
// was NOT captured.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("offline queue full (capacity %d)", e.Capacity)
}

// QueueWarning signals the soft capacity limit. The enqueue already
// succeeded; this is informational only.
type QueueWarning struct {
	Size int
}

func (e *QueueWarning) Error() string {
	return fmt.Sprintf("offline queue filling up (%d entries)", e.Size)
}

// SyncError aggregates queued operations that exhausted their retries during
// a drain pass. Individual entries remain queryable in failed status.
type SyncError struct {
	Failed    int
	Succeeded int
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync finished with %d failed operations (%d succeeded)", e.Failed, e.Succeeded)
}

// ErrNothingOutstanding means quick-log found every scheduled treatment
// already logged. Present it as "all caught up", not as a failure.
var ErrNothingOutstanding = errors.New("nothing outstanding to log")

// ErrNoActiveSchedules means no schedule has a reminder falling on today.
var ErrNoActiveSchedules = errors.New("no active schedules for today")

// ErrSessionNotFound is returned for edits or deletes of an unknown session.
var ErrSessionNotFound = errors.New("session not found")
