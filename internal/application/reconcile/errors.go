package reconcile

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a trigger arrives while another run
// holds the lock. Callers may retry later.
var ErrRunInProgress = errors.New("reconciliation run already in progress")

// StoreOp identifies which phase of a run failed against the store.
type StoreOp string

const (
	// OpRead means loading the snapshot failed; nothing was written.
	OpRead StoreOp = "read"
	// OpPersist means the commit failed and was rolled back; no run was recorded.
	OpPersist StoreOp = "persist"
)

// StoreError wraps a storage failure that aborted a run.
type StoreError struct {
	Op  StoreOp
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failure: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
