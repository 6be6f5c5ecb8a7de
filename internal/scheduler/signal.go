package scheduler

import "constellation/internal/ctype"

// Status is a run's terminal (or suspended) disposition, per section
// 4.9's "Output: Signal{...}".
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSuspended Status = "suspended"
	StatusFailed    Status = "failed"
)

// Signal is what a Run call returns: the completed outputs, the run's
// status, and (when suspended) the still-missing top-level inputs
// needed to resume (section 4.9's Suspension/Resumption contract).
type Signal struct {
	ExecutionID string
	Status      Status

	Outputs map[string]*ctype.Value

	// Missing is populated only when Status is StatusSuspended: the
	// declared top-level inputs that were never supplied, keyed by name.
	Missing map[string]*ctype.Type

	// Err is populated only when Status is StatusFailed: the first
	// module failure that caused the run to fail. A module's own error
	// is wrapped with %w (and a cancelled wait wraps errs.ErrCancelled,
	// section A.3) so callers can use errors.Is/errors.As without string
	// matching.
	Err error
}
