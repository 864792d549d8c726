package core

import "fmt"

var (
	// ErrInvalidContext is returned for construction-time precondition
	// violations: an empty or reserved user id, or an identifier the parser
	// rejects. It indicates a caller bug and is never retried or recovered
	// locally.
	ErrInvalidContext = fmt.Errorf("invalid execution context")

	// ErrContextIsolation is returned when two live contexts belonging to
	// different users are found sharing mutable state. The triggering
	// operation fails; the runtime keeps serving other users.
	ErrContextIsolation = fmt.Errorf("context isolation violation")
)
