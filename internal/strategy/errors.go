package strategy

import (
	"fmt"
	"strings"
)

// ValidationError reports one or more configuration problems found by
// Params.Validate or a strategy's own checks. It is returned before any state
// is applied.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// LifecycleError reports an illegal lifecycle operation, such as initializing
// twice or starting before initialization.
type LifecycleError struct {
	Op     string
	State  State
	Reason string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lifecycle: %s in state %s: %s", e.Op, e.State, e.Reason)
}

// ProcessingError wraps a failure inside a batch operation (data replay,
// signal generation, parameter update, lifecycle hook). The instance
// transitions to ERROR when one is raised.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing: %s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
