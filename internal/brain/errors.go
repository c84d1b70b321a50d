package brain

import "fmt"

// ValidationError rejects a request before any work happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ContextError means the context store was unreachable or returned a
// malformed row. A request cannot be routed without context, so this is
// fatal and surfaced before streaming starts.
type ContextError struct {
	Err error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context loading failed: %v", e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }

// DownstreamError preserves the status and message of a failed call to the
// retrieval+generation agent.
type DownstreamError struct {
	Status  int
	Message string
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream agent returned %d: %s", e.Status, e.Message)
}
